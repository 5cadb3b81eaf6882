package analyzer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daylogger/daylog/config"
	dlerrors "github.com/daylogger/daylog/pkg/errors"
	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/worklog"
)

// fakeClient returns canned responses or errors, recording prompts.
type fakeClient struct {
	content string
	err     error
	prompts []string
}

func (f *fakeClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return nil, f.err
	}
	return &CompletionResponse{Content: f.content}, nil
}

func newAnalyzer(client Client) *Analyzer {
	cfg := config.Default()
	return New(client, cfg.Pipeline, cfg.Inference, logging.NewNopLogger())
}

func testMessage() worklog.RawMessage {
	return worklog.RawMessage{
		ID:        "ch-1234abCD",
		UserID:    "user-1",
		Source:    worklog.SourceChat,
		Sender:    "alice",
		Body:      "Spent 2 hours fixing auth bug in login, ticket PROJ-123",
		Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		SourceID:  "teams:msg-42",
	}
}

func TestAnalyzeParsesCandidates(t *testing.T) {
	client := &fakeClient{content: `[
		{"description": "Fixed auth bug in login", "category": "Development", "priority": "high", "time_spent": 120, "project_hints": ["PROJ-123", "auth"], "confidence": 0.9},
		{"description": "Reviewed deploy checklist", "time_spent": null, "project_hints": [], "confidence": 0.7}
	]`}

	extractions, err := newAnalyzer(client).Analyze(context.Background(), testMessage(), nil)
	require.NoError(t, err)
	require.Len(t, extractions, 2)

	first := extractions[0]
	assert.Equal(t, "Fixed auth bug in login", first.Description)
	assert.Equal(t, "development", first.Category)
	assert.Equal(t, worklog.PriorityHigh, first.Priority)
	require.NotNil(t, first.EstimatedMinutes)
	assert.Equal(t, 120, *first.EstimatedMinutes)
	assert.Equal(t, []string{"proj-123", "auth"}, first.Keywords)
	assert.Equal(t, 0.9, first.Confidence)
	assert.Equal(t, 0, first.Ordinal)
	assert.False(t, first.Fallback)

	// Category and priority missing from the response default rather
	// than invalidating the candidate.
	second := extractions[1]
	assert.Equal(t, "other", second.Category)
	assert.Equal(t, worklog.PriorityMedium, second.Priority)
	assert.Nil(t, second.EstimatedMinutes)
	assert.Equal(t, 1, second.Ordinal)
	assert.Equal(t, "teams:msg-42#1", second.DedupKey())
}

func TestAnalyzeUnknownPriorityDefaultsToMedium(t *testing.T) {
	client := &fakeClient{content: `[
		{"description": "Escalated outage", "category": "troubleshooting", "priority": "critical", "confidence": 0.8}
	]`}

	extractions, err := newAnalyzer(client).Analyze(context.Background(), testMessage(), nil)
	require.NoError(t, err)
	require.Len(t, extractions, 1)
	assert.Equal(t, worklog.PriorityMedium, extractions[0].Priority)
	assert.Equal(t, "troubleshooting", extractions[0].Category)
}

func TestAnalyzeStripsCodeFences(t *testing.T) {
	client := &fakeClient{content: "```json\n[{\"description\": \"Standup\", \"time_spent\": 15, \"confidence\": 0.8}]\n```"}

	extractions, err := newAnalyzer(client).Analyze(context.Background(), testMessage(), nil)
	require.NoError(t, err)
	require.Len(t, extractions, 1)
	assert.Equal(t, "Standup", extractions[0].Description)
}

func TestAnalyzeEmptyArray(t *testing.T) {
	client := &fakeClient{content: `[]`}

	extractions, err := newAnalyzer(client).Analyze(context.Background(), testMessage(), nil)
	require.NoError(t, err)
	assert.Empty(t, extractions)
}

func TestAnalyzeGarbageFallsBack(t *testing.T) {
	client := &fakeClient{content: "I'm sorry, I can't help with that."}

	extractions, err := newAnalyzer(client).Analyze(context.Background(), testMessage(), nil)
	require.NoError(t, err)
	require.Len(t, extractions, 1)

	fb := extractions[0]
	assert.True(t, fb.Fallback)
	assert.Equal(t, 0.3, fb.Confidence)
	assert.Equal(t, 0, fb.Ordinal)
	assert.True(t, strings.HasPrefix(testMessage().Body, fb.Description))
}

func TestAnalyzeOutOfRangeConfidenceIsParseFailure(t *testing.T) {
	for _, content := range []string{
		`[{"description": "Task", "confidence": 1.5}]`,
		`[{"description": "Task", "confidence": -0.1}]`,
		`[{"description": "Task"}]`,
	} {
		client := &fakeClient{content: content}
		extractions, err := newAnalyzer(client).Analyze(context.Background(), testMessage(), nil)
		require.NoError(t, err)
		require.Len(t, extractions, 1, "content: %s", content)
		assert.True(t, extractions[0].Fallback, "content: %s", content)
	}
}

func TestAnalyzeTransportErrorPropagates(t *testing.T) {
	client := &fakeClient{err: dlerrors.NewPipelineError(dlerrors.CodeTransient, "inference", "503", nil)}

	_, err := newAnalyzer(client).Analyze(context.Background(), testMessage(), nil)
	require.Error(t, err)
	assert.True(t, dlerrors.IsRetryable(err))
}

func TestAnalyzeDeadlinePropagates(t *testing.T) {
	client := &fakeClient{err: context.DeadlineExceeded}

	_, err := newAnalyzer(client).Analyze(context.Background(), testMessage(), nil)
	require.Error(t, err)
	assert.Equal(t, dlerrors.CodeTransient, dlerrors.CodeOf(err))
}

func TestAnalyzeInjectsBoundedThreadContext(t *testing.T) {
	client := &fakeClient{content: `[]`}
	a := newAnalyzer(client)

	thread := []worklog.RawMessage{
		{Sender: "bob", Body: strings.Repeat("old ", 5000), Timestamp: time.Now()},
		{Sender: "carol", Body: "recent note about PROJ-123", Timestamp: time.Now()},
	}

	_, err := a.Analyze(context.Background(), testMessage(), thread)
	require.NoError(t, err)
	require.Len(t, client.prompts, 1)

	// Recent context survives; the oversized oldest message is dropped.
	assert.Contains(t, client.prompts[0], "recent note about PROJ-123")
	assert.NotContains(t, client.prompts[0], "old old old")
}
