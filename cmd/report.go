package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/daylogger/daylog/pkg/queue"
	"github.com/daylogger/daylog/pkg/worklog"
)

// Report command flags.
var (
	reportUser     string
	reportType     string
	reportDate     string
	reportStart    string
	reportEnd      string
	reportTemplate string
	reportQueue    bool
)

// NewReportCommand creates the report command. Reports aggregate a
// period's work items into category and priority rollups.
func NewReportCommand(app *App) *cobra.Command {
	c := &cobra.Command{
		Use:   "report",
		Short: "Generate a work report for a period",
		Long: `Generate a report over a user's work items. Daily, weekly, and
monthly periods are derived from --date; custom periods take explicit
--start and --end. Items still awaiting review are excluded from
totals. A new report supersedes the previous one for the same period.

Examples:
  daylog report --user alice --type daily
  daylog report --user alice --type weekly --date 2026-08-24
  daylog report --user alice --type custom --start 2026-08-01 --end 2026-08-15
  daylog report --user alice --type weekly --queue    Generate via the worker`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()

			typ := worklog.ReportType(reportType)
			start, end, err := reportPeriod()
			if err != nil {
				return err
			}

			if reportQueue {
				q, err := app.Queue(ctx, "daylog:report")
				if err != nil {
					return err
				}
				defer q.Close()
				task := &queue.ReportTask{
					UserID:      reportUser,
					ReportType:  typ,
					PeriodStart: start,
					PeriodEnd:   end,
					Template:    reportTemplate,
					Priority:    queue.PriorityNormal,
				}
				if err := q.Enqueue(task); err != nil {
					return fmt.Errorf("queueing report: %w", err)
				}
				fmt.Fprintf(c.OutOrStdout(), "Report queued for %s (%s to %s)\n",
					reportUser, start.Format("2006-01-02"), end.Format("2006-01-02"))
				return nil
			}

			composer, err := app.Composer(ctx)
			if err != nil {
				return err
			}
			r, err := composer.Generate(ctx, reportUser, typ, start, end, reportTemplate)
			if err != nil {
				return fmt.Errorf("generating report: %w", err)
			}

			out := c.OutOrStdout()
			if app.OutputFormat == "json" {
				return printJSON(out, r)
			}

			fmt.Fprintf(out, "%s report for %s: %s to %s\n",
				r.Type, r.UserID,
				r.PeriodStart.Format("2006-01-02"), r.PeriodEnd.Format("2006-01-02"))
			fmt.Fprintf(out, "  items:    %d\n", r.TotalItems)
			fmt.Fprintf(out, "  minutes:  %d\n", r.TotalMinutes)
			fmt.Fprintf(out, "  quality:  %.2f\n", r.QualityScore)
			printRollup(c, "by category", r.ByCategory)
			printRollup(c, "by priority", r.ByPriority)
			return nil
		},
	}

	c.Flags().StringVar(&reportUser, "user", "", "User to report on (required)")
	c.Flags().StringVar(&reportType, "type", "weekly", "Report type: daily, weekly, monthly, custom")
	c.Flags().StringVar(&reportDate, "date", "", "Reference day for daily/weekly/monthly (default today)")
	c.Flags().StringVar(&reportStart, "start", "", "Period start for custom reports")
	c.Flags().StringVar(&reportEnd, "end", "", "Period end (exclusive) for custom reports")
	c.Flags().StringVar(&reportTemplate, "template", "", "Optional template name recorded on the report")
	c.Flags().BoolVar(&reportQueue, "queue", false, "Enqueue for the worker instead of generating inline")
	_ = c.MarkFlagRequired("user")

	return c
}

// reportPeriod resolves the flags into [start, end) bounds.
func reportPeriod() (time.Time, time.Time, error) {
	if reportType == "custom" {
		if reportStart == "" || reportEnd == "" {
			return time.Time{}, time.Time{}, fmt.Errorf("--start and --end are required for custom reports")
		}
		start, err := parseTimeFlag(reportStart)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err := parseTimeFlag(reportEnd)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if !end.After(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("--end must be after --start")
		}
		return start, end, nil
	}

	ref := time.Now()
	if reportDate != "" {
		var err error
		ref, err = parseTimeFlag(reportDate)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return periodBounds(reportType, ref)
}

// printRollup prints a rollup sorted by key for stable output.
func printRollup(c *cobra.Command, title string, rollup map[string]worklog.Rollup) {
	if len(rollup) == 0 {
		return
	}
	out := c.OutOrStdout()
	fmt.Fprintf(out, "  %s:\n", title)
	keys := make([]string, 0, len(rollup))
	for k := range rollup {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "    %-20s %3d items %6d min\n", k, rollup[k].Count, rollup[k].Minutes)
	}
}
