package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daylogger/daylog/pkg/store"
)

// NewCancelCommand creates the cancel command: withdraw a submitted
// message, e.g. because the source message was deleted. In-flight pipeline
// runs check for cancellation before committing and discard their results.
func NewCancelCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <message-id> [message-id...]",
		Short: "Cancel submitted messages before they produce work items",
		Args:  cobra.MinimumNArgs(1),
		Example: `  daylog cancel ch_0000000001
  daylog cancel em_00000000a1 em_00000000a2`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			pool, err := app.Pool(ctx)
			if err != nil {
				return err
			}
			messages := store.NewMessageRepository(pool, app.Logger())

			out := c.OutOrStdout()
			for _, id := range args {
				if err := messages.Cancel(ctx, id); err != nil {
					return fmt.Errorf("cancelling %s: %w", id, err)
				}
				fmt.Fprintf(out, "cancelled %s\n", id)
			}
			return nil
		},
	}
}
