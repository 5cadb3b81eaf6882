package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/daylogger/daylog/config"
	"github.com/daylogger/daylog/pkg/worklog"
)

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		HighThreshold:   config.DefaultHighThreshold,
		MediumThreshold: config.DefaultMediumThreshold,
	}
}

func minutes(m int) *int { return &m }

func TestClassifyAutoApprove(t *testing.T) {
	// "Spent 2 hours fixing auth bug in login, ticket PROJ-123" with a
	// strong extraction and a strong ticket link approves without review.
	r := New(testConfig())

	e := worklog.Extraction{
		MessageID:        "msg-1",
		SourceID:         "slack-42",
		Ordinal:          0,
		Description:      "Fixed auth bug in login",
		EstimatedMinutes: minutes(120),
		Confidence:       0.9,
	}
	match := &worklog.TicketMatch{TicketKey: "PROJ-123", Confidence: 0.85, Selected: true}

	d := r.Classify(e, match)

	assert.Equal(t, TierAutoApprove, d.Tier)
	assert.False(t, d.NeedsReview)
	if assert.NotNil(t, d.TicketKey) {
		assert.Equal(t, "PROJ-123", *d.TicketKey)
	}
}

func TestClassifyTiers(t *testing.T) {
	r := New(testConfig())

	tests := []struct {
		name       string
		confidence float64
		match      *worklog.TicketMatch
		want       Tier
		review     bool
	}{
		{
			name:       "high confidence no match auto-approves",
			confidence: 0.85,
			want:       TierAutoApprove,
		},
		{
			name:       "exactly high threshold auto-approves",
			confidence: 0.8,
			want:       TierAutoApprove,
		},
		{
			name:       "high confidence weak match needs review",
			confidence: 0.9,
			match:      &worklog.TicketMatch{TicketKey: "PROJ-200", Confidence: 0.55},
			want:       TierNeedsReview,
			review:     true,
		},
		{
			name:       "medium confidence needs review",
			confidence: 0.6,
			want:       TierNeedsReview,
			review:     true,
		},
		{
			name:       "exactly medium threshold needs review",
			confidence: 0.5,
			want:       TierNeedsReview,
			review:     true,
		},
		{
			name:       "below medium falls back to manual entry",
			confidence: 0.4,
			want:       TierManualFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := worklog.Extraction{Confidence: tt.confidence, Description: "x"}
			d := r.Classify(e, tt.match)
			assert.Equal(t, tt.want, d.Tier)
			assert.Equal(t, tt.review, d.NeedsReview)
		})
	}
}

func TestClassifyFallbackExtractionCreatesNoItem(t *testing.T) {
	// Parse-failure fallbacks carry the floor confidence and must never
	// produce a work item, only a retained suggestion.
	r := New(testConfig())

	e := worklog.Extraction{
		Description: "some unparseable update text",
		Confidence:  config.DefaultFallbackConfidence,
		Fallback:    true,
	}

	d := r.Classify(e, nil)
	assert.Equal(t, TierManualFallback, d.Tier)
	assert.Nil(t, d.TicketKey)
}

func TestClassifyCarriesTicketOntoReview(t *testing.T) {
	r := New(testConfig())

	e := worklog.Extraction{Description: "x", Confidence: 0.6}
	d := r.Classify(e, &worklog.TicketMatch{TicketKey: "OPS-7", Confidence: 0.7})

	assert.Equal(t, TierNeedsReview, d.Tier)
	if assert.NotNil(t, d.TicketKey) {
		assert.Equal(t, "OPS-7", *d.TicketKey)
	}
}
