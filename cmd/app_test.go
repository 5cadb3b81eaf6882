package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeFlagBareDate(t *testing.T) {
	got, err := parseTimeFlag("2026-08-24")
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.August, got.Month())
	assert.Equal(t, 24, got.Day())
	assert.Equal(t, 0, got.Hour())
}

func TestParseTimeFlagRFC3339(t *testing.T) {
	got, err := parseTimeFlag("2026-08-24T09:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 9, got.UTC().Hour())
}

func TestParseTimeFlagRejectsGarbage(t *testing.T) {
	_, err := parseTimeFlag("next tuesday")
	assert.Error(t, err)

	_, err = parseTimeFlag("")
	assert.Error(t, err)
}

func TestPeriodBoundsDaily(t *testing.T) {
	ref := time.Date(2026, 8, 24, 15, 42, 0, 0, time.UTC)
	start, end, err := periodBounds("daily", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), end)
}

func TestPeriodBoundsWeeklyStartsMonday(t *testing.T) {
	// 2026-08-26 is a Wednesday; the week starts Monday the 24th.
	ref := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	start, end, err := periodBounds("weekly", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, start.Weekday())
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, start.AddDate(0, 0, 7), end)
}

func TestPeriodBoundsWeeklyOnMonday(t *testing.T) {
	ref := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	start, _, err := periodBounds("weekly", ref)
	require.NoError(t, err)
	assert.Equal(t, ref, start)
}

func TestPeriodBoundsMonthly(t *testing.T) {
	ref := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	start, end, err := periodBounds("monthly", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestPeriodBoundsUnknownType(t *testing.T) {
	_, _, err := periodBounds("fortnightly", time.Now())
	assert.Error(t, err)
}

func TestNextWeekdaySkipsToday(t *testing.T) {
	// From a Monday, the "next Monday" is a week out, not today.
	monday := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	got := nextWeekday(monday, time.Monday)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), got)

	// From a Wednesday, the next Monday is five days out.
	wednesday := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	got = nextWeekday(wednesday, time.Monday)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), got)
}
