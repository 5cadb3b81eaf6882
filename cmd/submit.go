package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/daylogger/daylog/pkg/ingest"
	"github.com/daylogger/daylog/pkg/queue"
	"github.com/daylogger/daylog/pkg/store"
)

// Submit command flags.
var (
	submitUser      string
	submitSource    string
	submitSender    string
	submitBody      string
	submitSourceID  string
	submitTimestamp string
	submitFile      string
	submitNow       bool
)

// NewSubmitCommand creates the submit command. It normalizes a collector
// payload, stores it, and enqueues a processing task (or runs the
// pipeline inline with --now).
func NewSubmitCommand(app *App) *cobra.Command {
	c := &cobra.Command{
		Use:   "submit",
		Short: "Submit a work communication for processing",
		Long: `Submit a raw work communication (chat message, email, manual note)
to the pipeline. The message is normalized, stored, and queued for
inference. Submitting the same source ID twice is a no-op.

Examples:
  daylog submit --user alice --source chat --sender bob --source-id slack-42 \
      --body "Spent the morning on PROJ-123 auth review"
  daylog submit --user alice --file payload.json
  daylog submit --user alice --file payload.json --now    Process inline`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()

			payload, err := buildPayload()
			if err != nil {
				return err
			}

			msg, err := ingest.NewNormalizer().Normalize(submitUser, payload)
			if err != nil {
				return fmt.Errorf("normalizing payload: %w", err)
			}

			pool, err := app.Pool(ctx)
			if err != nil {
				return err
			}
			messages := store.NewMessageRepository(pool, app.Logger())
			if err := messages.Create(ctx, &msg); err != nil {
				return fmt.Errorf("storing message: %w", err)
			}

			out := c.OutOrStdout()

			if submitNow {
				orch, err := app.Orchestrator(ctx)
				if err != nil {
					return err
				}
				event, err := orch.ProcessMessage(ctx, msg.ID)
				if err != nil {
					return fmt.Errorf("processing message %s: %w", msg.ID, err)
				}
				if app.OutputFormat == "json" {
					return printJSON(out, event)
				}
				fmt.Fprintf(out, "Message %s processed: %s\n", msg.ID, event.Outcome)
				for _, id := range event.WorkItemIDs {
					fmt.Fprintf(out, "  work item: %s\n", id)
				}
				return nil
			}

			q, err := app.Queue(ctx, "daylog:process")
			if err != nil {
				return err
			}
			defer q.Close()

			task := &queue.ProcessTask{
				MessageID: msg.ID,
				UserID:    msg.UserID,
				Source:    string(msg.Source),
				Priority:  queue.PriorityHigh,
				QueuedAt:  time.Now(),
			}
			if err := q.Enqueue(task); err != nil {
				return fmt.Errorf("queueing message %s: %w", msg.ID, err)
			}

			if app.OutputFormat == "json" {
				return printJSON(out, map[string]string{
					"message_id": msg.ID,
					"status":     "queued",
				})
			}
			fmt.Fprintf(out, "Message %s queued for processing\n", msg.ID)
			return nil
		},
	}

	c.Flags().StringVar(&submitUser, "user", "", "User the communication belongs to (required)")
	c.Flags().StringVar(&submitSource, "source", "manual", "Source: chat, email, manual")
	c.Flags().StringVar(&submitSender, "sender", "", "Original sender")
	c.Flags().StringVar(&submitBody, "body", "", "Message body")
	c.Flags().StringVar(&submitSourceID, "source-id", "", "Collector-supplied stable identifier")
	c.Flags().StringVar(&submitTimestamp, "timestamp", "", "Message timestamp (2006-01-02 or RFC3339, default now)")
	c.Flags().StringVar(&submitFile, "file", "", "Read the payload from a JSON file instead of flags ('-' for stdin)")
	c.Flags().BoolVar(&submitNow, "now", false, "Run the pipeline inline instead of queueing")
	_ = c.MarkFlagRequired("user")

	return c
}

// buildPayload assembles the collector payload from --file or from the
// individual flags. Flags override file fields when both are given.
func buildPayload() (ingest.Payload, error) {
	var p ingest.Payload

	if submitFile != "" {
		var data []byte
		var err error
		if submitFile == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(submitFile)
		}
		if err != nil {
			return p, fmt.Errorf("reading payload file: %w", err)
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("parsing payload file: %w", err)
		}
	}

	if submitSource != "" {
		p.Source = submitSource
	}
	if submitSender != "" {
		p.Sender = submitSender
	}
	if submitBody != "" {
		p.Body = submitBody
	}
	if submitSourceID != "" {
		p.SourceID = submitSourceID
	}
	if submitTimestamp != "" {
		ts, err := parseTimeFlag(submitTimestamp)
		if err != nil {
			return p, err
		}
		p.Timestamp = ts
	}
	return p, nil
}
