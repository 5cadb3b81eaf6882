package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daylogger/daylog/pkg/store"
)

// Process command flags.
var (
	processUser        string
	processLimit       int
	processConcurrency int
)

// NewProcessCommand creates the process command. It runs the pipeline
// directly, without going through the queue, for explicit message IDs or
// for a user's pending backlog.
func NewProcessCommand(app *App) *cobra.Command {
	c := &cobra.Command{
		Use:   "process [message-id...]",
		Short: "Run the pipeline for stored messages",
		Long: `Run the inference pipeline for stored messages. With message IDs,
those messages are processed; otherwise the pending backlog for --user
is drained. Re-processing a completed message never duplicates work
items.

Examples:
  daylog process ch_4fz9Kp2Qx1               Process one message
  daylog process --user alice                Drain alice's pending backlog
  daylog process --user alice --limit 20 --concurrency 8`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()

			ids := args
			if len(ids) == 0 {
				if processUser == "" {
					return fmt.Errorf("either message IDs or --user is required")
				}
				pool, err := app.Pool(ctx)
				if err != nil {
					return err
				}
				messages := store.NewMessageRepository(pool, app.Logger())
				pending, err := messages.ListPending(ctx, processUser, processLimit)
				if err != nil {
					return fmt.Errorf("listing pending messages: %w", err)
				}
				for _, m := range pending {
					ids = append(ids, m.ID)
				}
			}

			out := c.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "Nothing to process.")
				return nil
			}

			orch, err := app.Orchestrator(ctx)
			if err != nil {
				return err
			}

			err = orch.ProcessBatch(ctx, ids, processConcurrency)
			if err != nil {
				// Per-message failures are already recorded on the messages
				// themselves; surface the first one but report the batch.
				fmt.Fprintf(out, "Processed %d message(s), with failures.\n", len(ids))
				return err
			}
			fmt.Fprintf(out, "Processed %d message(s).\n", len(ids))
			return nil
		},
	}

	c.Flags().StringVar(&processUser, "user", "", "Drain this user's pending backlog")
	c.Flags().IntVar(&processLimit, "limit", 100, "Maximum pending messages to drain")
	c.Flags().IntVar(&processConcurrency, "concurrency", 4, "Concurrent pipeline runs")

	return c
}
