package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daylogger/daylog/pkg/queue"
	"github.com/daylogger/daylog/pkg/schedule"
	"github.com/daylogger/daylog/pkg/store"
)

// Schedule command flags.
var (
	scheduleUser      string
	scheduleWeekStart string
	scheduleDays      int
	scheduleCapacity  int
	scheduleQueue     bool
)

// NewScheduleCommand creates the schedule command. It packs a user's open
// work items into working days, highest priority first, splitting items
// that do not fit and reporting what spills past the horizon.
func NewScheduleCommand(app *App) *cobra.Command {
	c := &cobra.Command{
		Use:   "schedule",
		Short: "Distribute open work items across a week",
		Long: `Compute a weekly distribution of a user's open work items. Each day
has a fixed capacity; items are placed by priority, then age, and split
across days when they do not fit. Work that does not fit the week is
reported as overflow. The schedule is a preview, recomputed on demand.

Examples:
  daylog schedule --user alice
  daylog schedule --user alice --week-start 2026-08-31 --days 5
  daylog schedule --user alice --queue     Compute via the worker`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()

			start := nextWeekday(time.Now(), time.Monday)
			if scheduleWeekStart != "" {
				var err error
				start, err = parseTimeFlag(scheduleWeekStart)
				if err != nil {
					return err
				}
			}

			if scheduleQueue {
				q, err := app.Queue(ctx, "daylog:schedule")
				if err != nil {
					return err
				}
				defer q.Close()
				task := &queue.ScheduleTask{
					UserID:    scheduleUser,
					WeekStart: start,
					Priority:  queue.PriorityNormal,
				}
				if err := q.Enqueue(task); err != nil {
					return fmt.Errorf("queueing schedule: %w", err)
				}
				fmt.Fprintf(c.OutOrStdout(), "Schedule queued for %s, week of %s\n",
					scheduleUser, start.Format("2006-01-02"))
				return nil
			}

			cfg, err := app.Config()
			if err != nil {
				return err
			}
			pool, err := app.Pool(ctx)
			if err != nil {
				return err
			}

			capacity := cfg.Pipeline.DailyCapacityMinutes
			if scheduleCapacity > 0 {
				capacity = scheduleCapacity
			}
			opts := []schedule.Option{}
			if scheduleDays > 0 {
				opts = append(opts, schedule.WithDays(scheduleDays))
			}
			distributor := schedule.New(capacity, opts...)

			workItems := store.NewWorkItemRepository(pool, app.Logger())
			items, err := workItems.ListOpen(ctx, scheduleUser)
			if err != nil {
				return fmt.Errorf("listing open work items: %w", err)
			}

			days, overflow := distributor.Distribute(items, start)

			out := c.OutOrStdout()
			if app.OutputFormat == "json" {
				return printJSON(out, map[string]any{
					"days":             days,
					"overflow_minutes": overflow,
				})
			}

			byID := make(map[string]string, len(items))
			for _, it := range items {
				byID[it.ID] = it.Description
			}
			for _, day := range days {
				fmt.Fprintf(out, "%s  (%d/%d min)\n",
					day.Date.Format("Mon 2006-01-02"), day.TotalMinutes, capacity)
				for _, slot := range day.Slots {
					fmt.Fprintf(out, "  %4d min  %s\n", slot.Minutes, byID[slot.WorkItemID])
				}
			}
			if overflow > 0 {
				fmt.Fprintf(out, "Overflow: %d minutes do not fit this week.\n", overflow)
			}
			return nil
		},
	}

	c.Flags().StringVar(&scheduleUser, "user", "", "User to schedule (required)")
	c.Flags().StringVar(&scheduleWeekStart, "week-start", "", "First day of the week (default next Monday)")
	c.Flags().IntVar(&scheduleDays, "days", 0, "Working days in the week (0 uses the default)")
	c.Flags().IntVar(&scheduleCapacity, "capacity", 0, "Daily capacity in minutes (0 uses config)")
	c.Flags().BoolVar(&scheduleQueue, "queue", false, "Enqueue for the worker instead of computing inline")
	_ = c.MarkFlagRequired("user")

	return c
}

// nextWeekday returns the next occurrence of w strictly after today's
// start, so scheduling on a Monday targets the following week.
func nextWeekday(from time.Time, w time.Weekday) time.Time {
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	offset := (int(w) - int(day.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return day.AddDate(0, 0, offset)
}
