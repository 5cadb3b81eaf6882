// Package schedule distributes open work items across the days of a week
// by deterministic greedy bin-packing. The output is derived planning
// data: re-running distribution over the same items always produces the
// same schedule, and nothing here mutates the items themselves.
package schedule

import (
	"sort"
	"time"

	"github.com/daylogger/daylog/pkg/worklog"
)

// DefaultDays is the number of working days packed per run.
const DefaultDays = 5

// Distributor packs work item minutes into fixed-capacity days.
type Distributor struct {
	capacity int
	days     int
}

// Option configures a Distributor.
type Option func(*Distributor)

// WithDays overrides the number of days in the packing horizon.
func WithDays(n int) Option {
	return func(d *Distributor) { d.days = n }
}

// New creates a Distributor with the given per-day capacity in minutes.
func New(capacityMinutes int, opts ...Option) *Distributor {
	d := &Distributor{capacity: capacityMinutes, days: DefaultDays}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Distribute packs the schedulable items into consecutive days starting at
// start, and returns the daily schedules plus any minutes that did not fit
// in the horizon. Ordering is priority rank first, then creation time, then
// ID, so two runs over the same items produce identical schedules. An item
// larger than the remaining capacity of the current day is split; the
// remainder carries to the next day. Terminal items (completed, cancelled)
// and zero-minute items are not scheduled.
func (d *Distributor) Distribute(items []worklog.WorkItem, start time.Time) ([]worklog.DailySchedule, int) {
	open := make([]worklog.WorkItem, 0, len(items))
	for _, it := range items {
		if it.Status == worklog.StatusCompleted || it.Status == worklog.StatusCancelled {
			continue
		}
		if it.Minutes() <= 0 {
			continue
		}
		open = append(open, it)
	}

	sort.SliceStable(open, func(i, j int) bool {
		ri, rj := open[i].Priority.Rank(), open[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		if !open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].ID < open[j].ID
	})

	day := start
	schedules := make([]worklog.DailySchedule, 0, d.days)
	current := worklog.DailySchedule{Date: day}

	flush := func() {
		schedules = append(schedules, current)
		day = day.AddDate(0, 0, 1)
		current = worklog.DailySchedule{Date: day}
	}

	overflow := 0
	for _, it := range open {
		remaining := it.Minutes()
		for remaining > 0 {
			if len(schedules) == d.days {
				overflow += remaining
				break
			}
			free := d.capacity - current.TotalMinutes
			if free == 0 {
				flush()
				continue
			}
			take := remaining
			if take > free {
				take = free
			}
			current.Slots = append(current.Slots, worklog.Allocation{
				WorkItemID: it.ID,
				Minutes:    take,
			})
			current.TotalMinutes += take
			remaining -= take
		}
	}

	if len(schedules) < d.days && (len(current.Slots) > 0 || len(schedules) == 0) {
		schedules = append(schedules, current)
	}
	if overflow > 0 && len(schedules) > 0 {
		schedules[len(schedules)-1].Overflow = true
	}
	return schedules, overflow
}
