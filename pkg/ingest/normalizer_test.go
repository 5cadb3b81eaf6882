package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dlerrors "github.com/daylogger/daylog/pkg/errors"
	"github.com/daylogger/daylog/pkg/msgid"
	"github.com/daylogger/daylog/pkg/worklog"
)

func validPayload() Payload {
	return Payload{
		Source:    "chat",
		Sender:    "alice@example.com",
		Body:      "Spent 2 hours fixing auth bug in login, ticket PROJ-123",
		Timestamp: time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC),
		SourceID:  "teams:19:meeting_x:msg_42",
	}
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer()

	msg, err := n.Normalize("user-1", validPayload())
	require.NoError(t, err)

	assert.Equal(t, worklog.SourceChat, msg.Source)
	assert.Equal(t, "user-1", msg.UserID)
	assert.Equal(t, "teams:19:meeting_x:msg_42", msg.SourceID)
	assert.True(t, msgid.IsValid(msg.ID), "generated ID should be valid: %s", msg.ID)
	assert.True(t, strings.HasPrefix(msg.ID, "ch-"))
	assert.Equal(t, time.UTC, msg.Timestamp.Location())
}

func TestNormalizeRejections(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name   string
		userID string
		mutate func(*Payload)
	}{
		{"missing user", "", func(p *Payload) {}},
		{"unknown source", "user-1", func(p *Payload) { p.Source = "fax" }},
		{"missing source id", "user-1", func(p *Payload) { p.SourceID = "  " }},
		{"empty body", "user-1", func(p *Payload) { p.Body = "\n\t " }},
		{"collected without timestamp", "user-1", func(p *Payload) { p.Timestamp = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			_, err := n.Normalize(tt.userID, p)
			require.Error(t, err)
			assert.True(t, dlerrors.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestNormalizeManualDefaultsTimestamp(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	n := &Normalizer{now: func() time.Time { return fixed }}

	p := validPayload()
	p.Source = "manual"
	p.Timestamp = time.Time{}

	msg, err := n.Normalize("user-1", p)
	require.NoError(t, err)
	assert.Equal(t, fixed, msg.Timestamp)
	assert.True(t, strings.HasPrefix(msg.ID, "mn-"))
}

func TestNormalizeTruncatesLongBody(t *testing.T) {
	n := NewNormalizer()

	p := validPayload()
	p.Body = strings.Repeat("a", MaxBodyLength+500)

	msg, err := n.Normalize("user-1", p)
	require.NoError(t, err)
	assert.Len(t, msg.Body, MaxBodyLength)
}

func TestNormalizeSourceCaseInsensitive(t *testing.T) {
	n := NewNormalizer()

	p := validPayload()
	p.Source = " Email "

	msg, err := n.Normalize("user-1", p)
	require.NoError(t, err)
	assert.Equal(t, worklog.SourceEmail, msg.Source)
}
