// Package ingest normalizes heterogeneous collector output into canonical
// raw messages. Collectors (chat sync, mail fetch, manual entry) each
// produce a Payload; the Normalizer validates the shape and mints the
// pipeline-internal message ID. Anything rejected here never enters the
// queue.
package ingest

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	dlerrors "github.com/daylogger/daylog/pkg/errors"
	"github.com/daylogger/daylog/pkg/msgid"
	"github.com/daylogger/daylog/pkg/worklog"
)

// MaxBodyLength caps message bodies. Longer bodies are truncated, not
// rejected: a giant email still usually describes work in its first pages.
const MaxBodyLength = 16000

// Payload is the contract collectors satisfy. SourceID must be stable and
// unique per (source, message); it anchors pipeline idempotency.
type Payload struct {
	Source    string    `json:"source"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	SourceID  string    `json:"source_id"`
}

// Normalizer converts collector payloads into RawMessages.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize validates a collector payload for the given user and returns
// the canonical RawMessage. Validation failures wrap ErrValidation so the
// caller can reject bad input before processing.
func (n *Normalizer) Normalize(userID string, p Payload) (worklog.RawMessage, error) {
	if userID == "" {
		return worklog.RawMessage{}, fmt.Errorf("%w: user id is required", dlerrors.ErrValidation)
	}

	source := worklog.Source(strings.ToLower(strings.TrimSpace(p.Source)))
	if !source.Valid() {
		return worklog.RawMessage{}, fmt.Errorf("%w: unknown source %q", dlerrors.ErrValidation, p.Source)
	}

	sourceID := strings.TrimSpace(p.SourceID)
	if sourceID == "" {
		return worklog.RawMessage{}, fmt.Errorf("%w: source_id is required", dlerrors.ErrValidation)
	}

	body := strings.TrimSpace(p.Body)
	if body == "" {
		return worklog.RawMessage{}, fmt.Errorf("%w: body is empty", dlerrors.ErrValidation)
	}
	body = truncate(body, MaxBodyLength)

	ts := p.Timestamp
	if ts.IsZero() {
		// Manual entries often omit a timestamp; collected messages must
		// carry the original one.
		if source != worklog.SourceManual {
			return worklog.RawMessage{}, fmt.Errorf("%w: timestamp is required for source %q", dlerrors.ErrValidation, source)
		}
		ts = n.now()
	}

	id, err := msgid.ForSource(source)
	if err != nil {
		return worklog.RawMessage{}, err
	}

	return worklog.RawMessage{
		ID:        id,
		UserID:    userID,
		Source:    source,
		Sender:    strings.TrimSpace(p.Sender),
		Body:      body,
		Timestamp: ts.UTC(),
		SourceID:  sourceID,
	}, nil
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
