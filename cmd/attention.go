package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daylogger/daylog/pkg/store"
)

// Attention command flags.
var (
	attentionUser  string
	attentionLimit int
)

// NewAttentionCommand creates the attention command: everything waiting
// on a human — failed messages, items flagged for review, and retained
// fallback suggestions.
func NewAttentionCommand(app *App) *cobra.Command {
	c := &cobra.Command{
		Use:   "attention",
		Short: "Show everything waiting on human attention",
		Long: `Show the three backlogs the pipeline cannot clear on its own:
messages whose last run failed, work items created below the
auto-approval threshold, and suggestions retained after unparseable
inference responses.

Examples:
  daylog attention --user alice
  daylog attention --user alice --output json`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()

			pool, err := app.Pool(ctx)
			if err != nil {
				return err
			}
			logger := app.Logger()
			messages := store.NewMessageRepository(pool, logger)
			workItems := store.NewWorkItemRepository(pool, logger)
			suggestions := store.NewSuggestionRepository(pool, logger)

			failed, err := messages.ListFailed(ctx, attentionUser, attentionLimit)
			if err != nil {
				return fmt.Errorf("listing failed messages: %w", err)
			}
			review, err := workItems.ListNeedingReview(ctx, attentionUser, attentionLimit)
			if err != nil {
				return fmt.Errorf("listing review items: %w", err)
			}
			pending, err := suggestions.List(ctx, attentionUser, attentionLimit)
			if err != nil {
				return fmt.Errorf("listing suggestions: %w", err)
			}

			out := c.OutOrStdout()
			if app.OutputFormat == "json" {
				return printJSON(out, map[string]any{
					"failed_messages": failed,
					"review_items":    review,
					"suggestions":     pending,
				})
			}

			if len(failed) == 0 && len(review) == 0 && len(pending) == 0 {
				fmt.Fprintln(out, "Nothing needs attention.")
				return nil
			}

			if len(failed) > 0 {
				fmt.Fprintf(out, "Failed messages (%d):\n", len(failed))
				for _, m := range failed {
					fmt.Fprintf(out, "  %s  [%s] attempts=%d  %s\n",
						m.ID, m.Source, m.Attempts, m.LastError)
				}
			}
			if len(review) > 0 {
				fmt.Fprintf(out, "Work items needing review (%d):\n", len(review))
				for _, w := range review {
					ticket := "-"
					if w.TicketKey != nil {
						ticket = *w.TicketKey
					}
					fmt.Fprintf(out, "  %s  conf=%.2f  ticket=%s  %s\n",
						w.ID, w.Confidence, ticket, w.Description)
				}
			}
			if len(pending) > 0 {
				fmt.Fprintf(out, "Retained suggestions (%d):\n", len(pending))
				for _, s := range pending {
					fmt.Fprintf(out, "  %s#%d  conf=%.2f  %s\n",
						s.MessageID, s.Ordinal, s.Confidence, s.Description)
				}
			}
			return nil
		},
	}

	c.Flags().StringVar(&attentionUser, "user", "", "User to inspect (required)")
	c.Flags().IntVar(&attentionLimit, "limit", 50, "Maximum entries per section")
	_ = c.MarkFlagRequired("user")

	return c
}
