package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daylogger/daylog/pkg/db"
)

// Database command flags.
var dbDryRun bool

// NewDbCommand creates the db command group: schema migrations shipped
// with the binary, applied against the configured Postgres.
func NewDbCommand(app *App) *cobra.Command {
	c := &cobra.Command{
		Use:   "db",
		Short: "Database schema management",
		Long: `Apply and inspect the database schema migrations.

Migrations are SQL files embedded in the binary, applied in version order
and tracked in the schema_migrations table. Re-running migrate is safe;
applied versions are skipped.

Examples:
  daylog db status
  daylog db migrate
  daylog db migrate --dry-run`,
		Aliases: []string{"database", "migrations"},
	}

	c.AddCommand(newDbMigrateCommand(app))
	c.AddCommand(newDbStatusCommand(app))
	return c
}

func newDbMigrateCommand(app *App) *cobra.Command {
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			pool, err := app.Pool(ctx)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()

			pending, err := db.PendingMigrations(ctx, pool, db.SchemaFS())
			if err != nil {
				return fmt.Errorf("checking pending migrations: %w", err)
			}
			if len(pending) == 0 {
				fmt.Fprintln(out, "No pending migrations.")
				return nil
			}

			fmt.Fprintf(out, "Pending migrations (%d):\n", len(pending))
			for _, m := range pending {
				fmt.Fprintf(out, "  %s\n", m.Name)
			}
			if dbDryRun {
				fmt.Fprintln(out, "Dry run: nothing applied.")
				return nil
			}

			result, err := db.RunMigrations(ctx, pool, db.SchemaFS())
			if result != nil {
				for _, v := range result.Applied {
					fmt.Fprintf(out, "applied %s\n", v)
				}
			}
			if err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}
			fmt.Fprintf(out, "Applied %d migration(s).\n", len(result.Applied))
			return nil
		},
	}

	c.Flags().BoolVar(&dbDryRun, "dry-run", false, "Show pending migrations without applying them")
	return c
}

func newDbStatusCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show schema migration status",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			pool, err := app.Pool(ctx)
			if err != nil {
				return err
			}

			status, err := db.Status(ctx, pool, db.SchemaFS())
			if err != nil {
				return fmt.Errorf("reading migration status: %w", err)
			}

			out := c.OutOrStdout()
			if app.OutputFormat == "json" {
				return printJSON(out, status)
			}

			fmt.Fprintf(out, "Applied (%d):\n", len(status.Applied))
			for _, e := range status.Applied {
				fmt.Fprintf(out, "  %s  %s\n", e.Version, e.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(out, "Pending (%d):\n", len(status.Pending))
			for _, e := range status.Pending {
				fmt.Fprintf(out, "  %s\n", e.Version)
			}
			if len(status.Drift) > 0 {
				fmt.Fprintf(out, "Drift (%d, applied but no file):\n", len(status.Drift))
				for _, e := range status.Drift {
					fmt.Fprintf(out, "  %s\n", e.Version)
				}
			}
			return nil
		},
	}
}
