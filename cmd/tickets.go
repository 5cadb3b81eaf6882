package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daylogger/daylog/pkg/tickets"
	"github.com/daylogger/daylog/pkg/worklog"
)

// Tickets command flags.
var (
	ticketsUser string
	ticketsFile string
)

// NewTicketsCommand creates the tickets command group. The ticket cache
// is what extractions are matched against; collectors refresh it from
// the external tracker.
func NewTicketsCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "tickets",
		Short: "Manage the cached ticket snapshot",
		Long: `Manage the per-user ticket cache used for matching. 'refresh'
replaces the snapshot atomically from a tracker export; 'list' shows
what the matcher currently sees.`,
	}

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Replace a user's ticket snapshot from a JSON export",
		Long: `Replace the user's entire ticket snapshot from a JSON array of
tickets. The swap is atomic: matching sees either the old snapshot or
the new one, never a mix.

Example:
  daylog tickets refresh --user alice --file tickets.json`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()

			data, err := os.ReadFile(ticketsFile)
			if err != nil {
				return fmt.Errorf("reading ticket export: %w", err)
			}
			var ts []worklog.Ticket
			if err := json.Unmarshal(data, &ts); err != nil {
				return fmt.Errorf("parsing ticket export: %w", err)
			}

			pool, err := app.Pool(ctx)
			if err != nil {
				return err
			}
			repo := tickets.NewRepository(pool, app.Logger())
			if err := repo.Refresh(ctx, ticketsUser, ts); err != nil {
				return fmt.Errorf("refreshing tickets: %w", err)
			}
			fmt.Fprintf(c.OutOrStdout(), "Refreshed %d ticket(s) for %s\n", len(ts), ticketsUser)
			return nil
		},
	}
	refresh.Flags().StringVar(&ticketsFile, "file", "", "JSON file with an array of tickets (required)")
	_ = refresh.MarkFlagRequired("file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's cached tickets",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()

			pool, err := app.Pool(ctx)
			if err != nil {
				return err
			}
			repo := tickets.NewRepository(pool, app.Logger())
			ts, err := repo.ListForUser(ctx, ticketsUser)
			if err != nil {
				return fmt.Errorf("listing tickets: %w", err)
			}

			out := c.OutOrStdout()
			if app.OutputFormat == "json" {
				return printJSON(out, ts)
			}
			if len(ts) == 0 {
				fmt.Fprintln(out, "No cached tickets.")
				return nil
			}
			fmt.Fprintf(out, "%-15s %-12s %-15s %s\n", "KEY", "STATUS", "PROJECT", "TITLE")
			for _, t := range ts {
				fmt.Fprintf(out, "%-15s %-12s %-15s %s\n", t.Key, t.Status, t.Project, t.Title)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&ticketsUser, "user", "", "Ticket cache owner (required)")
	_ = root.MarkPersistentFlagRequired("user")

	root.AddCommand(refresh)
	root.AddCommand(list)
	return root
}
