package worklog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupKeyIsStablePerOrdinal(t *testing.T) {
	first := Extraction{SourceID: "slack-42", Ordinal: 0}
	second := Extraction{SourceID: "slack-42", Ordinal: 1}

	assert.Equal(t, "slack-42#0", first.DedupKey())
	assert.Equal(t, "slack-42#1", second.DedupKey())
	assert.NotEqual(t, first.DedupKey(), second.DedupKey())

	// The key ignores everything except source ID and ordinal, so a
	// re-run with different inferred content maps to the same item.
	rerun := Extraction{SourceID: "slack-42", Ordinal: 0, Description: "different wording", Confidence: 0.4}
	assert.Equal(t, first.DedupKey(), rerun.DedupKey())
}

func TestPriorityRankOrdering(t *testing.T) {
	assert.Less(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Greater(t, Priority("someday").Rank(), PriorityLow.Rank())
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, ParsePriority("high"))
	assert.Equal(t, PriorityHigh, ParsePriority(" High "))
	assert.Equal(t, PriorityUrgent, ParsePriority("URGENT"))
	assert.Equal(t, PriorityLow, ParsePriority("low"))

	// Absent or made-up values default to medium.
	assert.Equal(t, PriorityMedium, ParsePriority(""))
	assert.Equal(t, PriorityMedium, ParsePriority("critical"))
	assert.Equal(t, PriorityMedium, ParsePriority("p1"))
}

func TestSourceValid(t *testing.T) {
	assert.True(t, SourceChat.Valid())
	assert.True(t, SourceEmail.Valid())
	assert.True(t, SourceManual.Valid())
	assert.False(t, Source("carrier-pigeon").Valid())
	assert.False(t, Source("").Valid())
}

func TestWorkItemMinutesPrefersActual(t *testing.T) {
	actual := 90
	w := WorkItem{EstimatedMinutes: 120}
	assert.Equal(t, 120, w.Minutes())

	w.ActualMinutes = &actual
	assert.Equal(t, 90, w.Minutes())
}
