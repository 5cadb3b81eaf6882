package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/daylogger/daylog/pkg/store"
	"github.com/daylogger/daylog/pkg/worklog"
)

// Review command flags.
var (
	reviewUser    string
	reviewLimit   int
	reviewMinutes int
	trackMinutes  int
)

// reviewStore is the slice of the work item repository the review commands
// use; commands run against the Postgres repository, tests against a fake.
type reviewStore interface {
	ListNeedingReview(ctx context.Context, userID string, limit int) ([]worklog.WorkItem, error)
	ClearReview(ctx context.Context, id string, actualMinutes *int) error
	UpdateStatus(ctx context.Context, id string, status worklog.WorkItemStatus) error
	RecordActualMinutes(ctx context.Context, id string, minutes int) error
}

// NewReviewCommand creates the review command group: the companion to
// attention that actually clears the review backlog.
func NewReviewCommand(app *App) *cobra.Command {
	c := &cobra.Command{
		Use:   "review",
		Short: "Confirm or reject work items flagged for review",
		Long: `List, confirm, and reject work items created below the auto-approval
threshold. Confirming clears the review flag (optionally correcting the
minutes) so the item counts toward reports; rejecting cancels it.

Examples:
  daylog review --user alice
  daylog review confirm 7c9e... --minutes 90
  daylog review reject 7c9e...`,
		RunE: func(c *cobra.Command, args []string) error {
			s, err := reviewRepository(c.Context(), app)
			if err != nil {
				return err
			}
			return runReviewList(c.Context(), s, app.OutputFormat, c.OutOrStdout())
		},
	}

	c.PersistentFlags().StringVar(&reviewUser, "user", "", "User whose items to review (required for list)")
	c.Flags().IntVar(&reviewLimit, "limit", 50, "Maximum items to list")

	c.AddCommand(newReviewConfirmCommand(app))
	c.AddCommand(newReviewRejectCommand(app))
	return c
}

func newReviewConfirmCommand(app *App) *cobra.Command {
	c := &cobra.Command{
		Use:   "confirm <work-item-id>",
		Short: "Clear an item's review flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			s, err := reviewRepository(c.Context(), app)
			if err != nil {
				return err
			}
			var minutes *int
			if c.Flags().Changed("minutes") {
				minutes = &reviewMinutes
			}
			return runReviewConfirm(c.Context(), s, c.OutOrStdout(), args[0], minutes)
		},
	}
	c.Flags().IntVar(&reviewMinutes, "minutes", 0, "Correct the item's minutes while confirming")
	return c
}

func newReviewRejectCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <work-item-id>",
		Short: "Cancel an item that should not have been created",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			s, err := reviewRepository(c.Context(), app)
			if err != nil {
				return err
			}
			return runReviewReject(c.Context(), s, c.OutOrStdout(), args[0])
		},
	}
}

// NewTrackCommand creates the track command: record the time actually
// spent on a work item, overriding its estimate in reports.
func NewTrackCommand(app *App) *cobra.Command {
	c := &cobra.Command{
		Use:   "track <work-item-id>",
		Short: "Record actual minutes spent on a work item",
		Args:  cobra.ExactArgs(1),
		Example: `  daylog track 7c9e... --minutes 45`,
		RunE: func(c *cobra.Command, args []string) error {
			s, err := reviewRepository(c.Context(), app)
			if err != nil {
				return err
			}
			return runTrack(c.Context(), s, c.OutOrStdout(), args[0], trackMinutes)
		},
	}
	c.Flags().IntVar(&trackMinutes, "minutes", 0, "Minutes actually spent (required)")
	_ = c.MarkFlagRequired("minutes")
	return c
}

func reviewRepository(ctx context.Context, app *App) (reviewStore, error) {
	pool, err := app.Pool(ctx)
	if err != nil {
		return nil, err
	}
	return store.NewWorkItemRepository(pool, app.Logger()), nil
}

func runReviewList(ctx context.Context, s reviewStore, format string, out io.Writer) error {
	if reviewUser == "" {
		return fmt.Errorf("--user is required")
	}
	items, err := s.ListNeedingReview(ctx, reviewUser, reviewLimit)
	if err != nil {
		return fmt.Errorf("listing review items: %w", err)
	}

	if format == "json" {
		return printJSON(out, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "No items awaiting review.")
		return nil
	}
	fmt.Fprintf(out, "Work items needing review (%d):\n", len(items))
	for _, w := range items {
		ticket := "-"
		if w.TicketKey != nil {
			ticket = *w.TicketKey
		}
		fmt.Fprintf(out, "  %s  conf=%.2f  est=%dm  ticket=%s  %s\n",
			w.ID, w.Confidence, w.EstimatedMinutes, ticket, w.Description)
	}
	return nil
}

func runReviewConfirm(ctx context.Context, s reviewStore, out io.Writer, id string, minutes *int) error {
	if err := s.ClearReview(ctx, id, minutes); err != nil {
		return fmt.Errorf("confirming work item: %w", err)
	}
	fmt.Fprintf(out, "confirmed %s\n", id)
	return nil
}

func runReviewReject(ctx context.Context, s reviewStore, out io.Writer, id string) error {
	if err := s.UpdateStatus(ctx, id, worklog.StatusCancelled); err != nil {
		return fmt.Errorf("rejecting work item: %w", err)
	}
	fmt.Fprintf(out, "rejected %s\n", id)
	return nil
}

func runTrack(ctx context.Context, s reviewStore, out io.Writer, id string, minutes int) error {
	if err := s.RecordActualMinutes(ctx, id, minutes); err != nil {
		return fmt.Errorf("recording minutes: %w", err)
	}
	fmt.Fprintf(out, "recorded %dm on %s\n", minutes, id)
	return nil
}
