// Package main provides the daylog CLI entry point.
// daylog turns raw work communications into reconciled work items,
// reports, and weekly schedules.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daylogger/daylog/cmd"
	"github.com/daylogger/daylog/pkg/buildinfo"
)

// Global flags and state.
var (
	cfgFile      string
	outputFormat string
	debug        bool

	// app holds the shared lazily-connected dependencies for subcommands.
	app = cmd.NewApp()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "daylog",
	Short: "Daylog - work item inference and reconciliation pipeline",
	Long: `daylog turns raw work communications (chat, email, manual notes) into
structured work items. Messages are analyzed by an inference service,
matched against the user's tickets, and routed by confidence:
high-confidence items are created directly, mid-confidence items are
flagged for review, and everything else is retained as a suggestion.

COMMON WORKFLOWS:
  Submit work:      daylog submit --user alice --source chat ...
  Drain backlog:    daylog process --user alice
  Run the workers:  daylog worker
  Weekly report:    daylog report --user alice --type weekly
  Plan the week:    daylog schedule --user alice
  Triage:           daylog attention --user alice
  Clear reviews:    daylog review confirm <work-item-id>

Most commands support --output json for structured output.`,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		if c.Name() == "version" || c.Name() == "help" || c.Name() == "completion" {
			return nil
		}
		app.ConfigPath = cfgFile
		app.OutputFormat = outputFormat
		app.Debug = debug
		return nil
	},
	PersistentPostRun: func(c *cobra.Command, args []string) {
		app.Close()
	},
}

// Version command flags.
var versionOutputJSON bool

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get("daylog")
		out := c.OutOrStdout()
		if versionOutputJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintf(out, "daylog version %s\n", info.Version)
		fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go:         %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus DAYLOG_* env)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "", "output format: text, json")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	versionCmd.Flags().BoolVar(&versionOutputJSON, "output-json", false, "Output as JSON")
	rootCmd.AddCommand(versionCmd)

	rootCmd.AddCommand(cmd.NewSubmitCommand(app))
	rootCmd.AddCommand(cmd.NewCancelCommand(app))
	rootCmd.AddCommand(cmd.NewProcessCommand(app))
	rootCmd.AddCommand(cmd.NewWorkerCommand(app))
	rootCmd.AddCommand(cmd.NewReportCommand(app))
	rootCmd.AddCommand(cmd.NewScheduleCommand(app))
	rootCmd.AddCommand(cmd.NewAttentionCommand(app))
	rootCmd.AddCommand(cmd.NewReviewCommand(app))
	rootCmd.AddCommand(cmd.NewTrackCommand(app))
	rootCmd.AddCommand(cmd.NewTicketsCommand(app))
	rootCmd.AddCommand(cmd.NewDbCommand(app))
}

func main() {
	// Graceful shutdown on interrupt: the context cancels and long-running
	// commands (worker, process) drain before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
