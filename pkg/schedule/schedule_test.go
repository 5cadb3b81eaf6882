package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daylogger/daylog/config"
	"github.com/daylogger/daylog/pkg/worklog"
)

func item(id string, p worklog.Priority, minutes int, created time.Time) worklog.WorkItem {
	return worklog.WorkItem{
		ID:               id,
		Priority:         p,
		EstimatedMinutes: minutes,
		Status:           worklog.StatusPending,
		CreatedAt:        created,
	}
}

func TestDistributePacksByPriorityAndSplits(t *testing.T) {
	// Five 200-minute items into two 480-minute days: the second high item
	// splits across the day boundary and 40 minutes overflow the horizon.
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	items := []worklog.WorkItem{
		item("low", worklog.PriorityLow, 200, base.Add(4*time.Minute)),
		item("medium", worklog.PriorityMedium, 200, base.Add(3*time.Minute)),
		item("high-b", worklog.PriorityHigh, 200, base.Add(2*time.Minute)),
		item("high-a", worklog.PriorityHigh, 200, base.Add(1*time.Minute)),
		item("urgent", worklog.PriorityUrgent, 200, base),
	}

	d := New(config.DefaultDailyCapacityMin, WithDays(2))
	days, overflow := d.Distribute(items, base)

	require.Len(t, days, 2)
	assert.Equal(t, 40, overflow)

	assert.Equal(t, []worklog.Allocation{
		{WorkItemID: "urgent", Minutes: 200},
		{WorkItemID: "high-a", Minutes: 200},
		{WorkItemID: "high-b", Minutes: 80},
	}, days[0].Slots)
	assert.Equal(t, 480, days[0].TotalMinutes)
	assert.False(t, days[0].Overflow)

	assert.Equal(t, []worklog.Allocation{
		{WorkItemID: "high-b", Minutes: 120},
		{WorkItemID: "medium", Minutes: 200},
		{WorkItemID: "low", Minutes: 160},
	}, days[1].Slots)
	assert.Equal(t, 480, days[1].TotalMinutes)
	assert.True(t, days[1].Overflow)

	assert.Equal(t, base, days[0].Date)
	assert.Equal(t, base.AddDate(0, 0, 1), days[1].Date)
}

func TestDistributeIsDeterministic(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	// Same priority and creation time: ID is the final tiebreak.
	items := []worklog.WorkItem{
		item("b", worklog.PriorityMedium, 60, base),
		item("a", worklog.PriorityMedium, 60, base),
	}

	d := New(480)
	first, _ := d.Distribute(items, base)
	second, _ := d.Distribute(items, base)

	assert.Equal(t, first, second)
	require.NotEmpty(t, first)
	assert.Equal(t, "a", first[0].Slots[0].WorkItemID)
	assert.Equal(t, "b", first[0].Slots[1].WorkItemID)
}

func TestDistributeSkipsTerminalAndZeroItems(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	done := item("done", worklog.PriorityUrgent, 300, base)
	done.Status = worklog.StatusCompleted
	gone := item("gone", worklog.PriorityUrgent, 300, base)
	gone.Status = worklog.StatusCancelled
	empty := item("empty", worklog.PriorityHigh, 0, base)
	open := item("open", worklog.PriorityLow, 90, base)

	d := New(480)
	days, overflow := d.Distribute([]worklog.WorkItem{done, gone, empty, open}, base)

	assert.Zero(t, overflow)
	require.NotEmpty(t, days)
	assert.Equal(t, []worklog.Allocation{{WorkItemID: "open", Minutes: 90}}, days[0].Slots)
}

func TestDistributeUsesActualMinutesWhenRecorded(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	it := item("tracked", worklog.PriorityMedium, 300, base)
	actual := 45
	it.ActualMinutes = &actual

	d := New(480)
	days, _ := d.Distribute([]worklog.WorkItem{it}, base)

	require.NotEmpty(t, days)
	assert.Equal(t, 45, days[0].TotalMinutes)
}

func TestDistributeNoItemsYieldsEmptyFirstDay(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	d := New(480)
	days, overflow := d.Distribute(nil, base)

	assert.Zero(t, overflow)
	require.Len(t, days, 1)
	assert.Empty(t, days[0].Slots)
	assert.False(t, days[0].Overflow)
}
