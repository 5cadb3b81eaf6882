package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daylogger/daylog/config"
	"github.com/daylogger/daylog/pkg/analyzer"
	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/worklog"
)

type fakeClient struct {
	content string
	err     error
	calls   int
}

func (f *fakeClient) Complete(ctx context.Context, req *analyzer.CompletionRequest) (*analyzer.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &analyzer.CompletionResponse{Content: f.content}, nil
}

func newMatcher(client analyzer.Client, opts ...Option) *Matcher {
	cfg := config.Default()
	return New(client, cfg.Pipeline, cfg.Inference, logging.NewNopLogger(), opts...)
}

func authExtraction() worklog.Extraction {
	return worklog.Extraction{
		MessageID:   "ch-1234abCD",
		SourceID:    "teams:msg-42",
		Ordinal:     0,
		Description: "Fixed auth bug in login",
		Keywords:    []string{"proj-123", "auth", "login"},
		Confidence:  0.9,
	}
}

func ticketSet() []worklog.Ticket {
	return []worklog.Ticket{
		{Key: "PROJ-123", Title: "Login auth bug", Status: "open", Project: "PROJ", Labels: []string{"auth"}, UpdatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Key: "PROJ-200", Title: "Migrate billing exports", Status: "open", Project: "PROJ", UpdatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{Key: "OPS-7", Title: "Upgrade database cluster", Status: "open", Project: "OPS", UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestMatchSelectsStrongestCandidate(t *testing.T) {
	client := &fakeClient{content: `[{"ticket_key": "PROJ-123", "confidence": 0.85, "reasoning": "login bug matches"}]`}

	matches, err := newMatcher(client).Match(context.Background(), authExtraction(), ticketSet())
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	top := matches[0]
	assert.Equal(t, "PROJ-123", top.TicketKey)
	assert.Equal(t, 0.85, top.Confidence)
	assert.True(t, top.Selected)
	for _, m := range matches[1:] {
		assert.False(t, m.Selected)
	}
}

func TestMatchTakesMaxOfSignals(t *testing.T) {
	// Semantic pass is weak; a strong keyword hit must not be diluted.
	client := &fakeClient{content: `[{"ticket_key": "PROJ-123", "confidence": 0.2, "reasoning": "weak"}]`}

	e := authExtraction()
	e.Keywords = []string{"proj-123", "login", "auth", "bug"}

	matches, err := newMatcher(client).Match(context.Background(), e, ticketSet())
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	kw := keywordScore(e.Keywords, ticketSet()[0])
	assert.Equal(t, kw, matches[0].Confidence)
	assert.Greater(t, kw, 0.2)
}

func TestMatchDiscardsBelowFloor(t *testing.T) {
	client := &fakeClient{content: `[{"ticket_key": "OPS-7", "confidence": 0.4, "reasoning": "vague"}]`}

	e := authExtraction()
	e.Keywords = []string{"unrelated"}

	matches, err := newMatcher(client).Match(context.Background(), e, ticketSet())
	require.NoError(t, err)
	assert.Empty(t, matches, "candidates below the floor are discarded, not returned weak")
}

func TestMatchTieBreakMostRecentlyUpdated(t *testing.T) {
	client := &fakeClient{content: `[
		{"ticket_key": "PROJ-123", "confidence": 0.8, "reasoning": "same"},
		{"ticket_key": "PROJ-200", "confidence": 0.8, "reasoning": "same"}
	]`}

	matches, err := newMatcher(client).Match(context.Background(), authExtraction(), ticketSet())
	require.NoError(t, err)
	require.Len(t, matches, 2)
	// PROJ-123 updated March 1st, PROJ-200 February 1st.
	assert.Equal(t, "PROJ-123", matches[0].TicketKey)
}

func TestMatchTieBreakConfigurable(t *testing.T) {
	client := &fakeClient{content: `[
		{"ticket_key": "PROJ-123", "confidence": 0.8, "reasoning": "same"},
		{"ticket_key": "PROJ-200", "confidence": 0.8, "reasoning": "same"}
	]`}

	// Invert the default: oldest update wins.
	m := newMatcher(client, WithTieBreak(func(a, b worklog.Ticket) bool {
		return a.UpdatedAt.Before(b.UpdatedAt)
	}))

	matches, err := m.Match(context.Background(), authExtraction(), ticketSet())
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "PROJ-200", matches[0].TicketKey)
}

func TestMatchSemanticFailureDegradesToKeywords(t *testing.T) {
	client := &fakeClient{err: errors.New("inference service unavailable (503)")}

	e := authExtraction()
	e.Keywords = []string{"proj-123", "login", "auth", "bug"}

	matches, err := newMatcher(client).Match(context.Background(), e, ticketSet())
	require.NoError(t, err, "semantic failure must not abort the match step")
	require.NotEmpty(t, matches)
	assert.Equal(t, "PROJ-123", matches[0].TicketKey)
}

func TestMatchGarbageRankingDegradesToKeywords(t *testing.T) {
	client := &fakeClient{content: "no json here"}

	e := authExtraction()
	e.Keywords = []string{"proj-123", "login", "auth", "bug"}

	matches, err := newMatcher(client).Match(context.Background(), e, ticketSet())
	require.NoError(t, err)
	require.NotEmpty(t, matches)
}

func TestMatchDropsHallucinatedAndOutOfRangeEntries(t *testing.T) {
	client := &fakeClient{content: `[
		{"ticket_key": "MADE-UP-1", "confidence": 0.99, "reasoning": "hallucinated"},
		{"ticket_key": "PROJ-123", "confidence": 1.7, "reasoning": "out of range"}
	]`}

	e := authExtraction()
	e.Keywords = []string{"unrelated"}

	matches, err := newMatcher(client).Match(context.Background(), e, ticketSet())
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchNoTickets(t *testing.T) {
	client := &fakeClient{}
	matches, err := newMatcher(client).Match(context.Background(), authExtraction(), nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Zero(t, client.calls, "no inference call without candidates")
}

func TestKeywordScore(t *testing.T) {
	ticket := worklog.Ticket{Key: "PROJ-123", Title: "Login auth bug", Labels: []string{"auth"}}

	assert.Zero(t, keywordScore(nil, ticket))
	assert.Zero(t, keywordScore([]string{"billing"}, ticket))

	full := keywordScore([]string{"proj-123", "login", "auth", "bug"}, ticket)
	assert.Equal(t, 1.0, full, "identical sets score 1.0")

	partial := keywordScore([]string{"auth", "database"}, ticket)
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, full)
}
