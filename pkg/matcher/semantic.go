package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/daylogger/daylog/pkg/analyzer"
	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/worklog"
)

// rankTemplateText asks the inference service to rank candidate tickets
// for a work description, returning per-ticket confidence and a reason.
const rankTemplateText = `Match the following work description to the most relevant tickets.

Work description: "{{.Description}}"

Candidate tickets:
{{range .Tickets}}- {{.Key}}: {{.Title}} [{{.Status}}{{if .Labels}}; labels: {{join .Labels ", "}}{{end}}]
{{end}}
Consider keywords, topic similarity, project context, and explicit ticket references.

Respond with a JSON array only:
[
  {
    "ticket_key": "PROJ-123",
    "confidence": 0.85,
    "reasoning": "work description mentions the login bug this ticket tracks"
  }
]

Only include tickets that plausibly relate. If none relate, respond with [].`

var rankTemplate = template.Must(
	template.New("rank").Funcs(template.FuncMap{"join": strings.Join}).Parse(rankTemplateText),
)

// semanticMatch is one entry of the ranking response.
type semanticMatch struct {
	TicketKey  string  `json:"ticket_key"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type semanticScore struct {
	confidence float64
	reason     string
}

// semanticScores runs the ranking pass and returns per-ticket scores.
// Failures are logged and produce an empty map: the matcher falls back to
// keyword-only scoring rather than failing the pipeline run.
func (m *Matcher) semanticScores(ctx context.Context, e worklog.Extraction, candidates []worklog.Ticket) map[string]semanticScore {
	if len(candidates) == 0 {
		return nil
	}

	var buf bytes.Buffer
	err := rankTemplate.Execute(&buf, struct {
		Description string
		Tickets     []worklog.Ticket
	}{Description: e.Description, Tickets: candidates})
	if err != nil {
		m.logger.Error("failed to render rank prompt", logging.Err(err))
		return nil
	}

	resp, err := m.client.Complete(ctx, &analyzer.CompletionRequest{
		Prompt:      buf.String(),
		MaxTokens:   m.inf.MaxTokens,
		Temperature: m.inf.Temperature,
	})
	if err != nil {
		m.logger.Warn("semantic ranking pass failed, using keyword scores only",
			logging.F("message_id", e.MessageID),
			logging.Err(err),
		)
		return nil
	}

	payload := strings.TrimSpace(resp.Content)
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	payload = strings.TrimSuffix(strings.TrimSpace(payload), "```")

	var parsed []semanticMatch
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		m.logger.Warn("unparseable ranking response, using keyword scores only",
			logging.F("message_id", e.MessageID),
			logging.Err(err),
		)
		return nil
	}

	known := make(map[string]bool, len(candidates))
	for _, t := range candidates {
		known[t.Key] = true
	}

	scores := make(map[string]semanticScore, len(parsed))
	for _, sm := range parsed {
		// Hallucinated keys and out-of-range confidences are dropped,
		// never clamped.
		if !known[sm.TicketKey] || sm.Confidence < 0 || sm.Confidence > 1 {
			m.logger.Warn("dropping invalid ranking entry",
				logging.F("ticket_key", sm.TicketKey),
				logging.F("confidence", sm.Confidence),
			)
			continue
		}
		scores[sm.TicketKey] = semanticScore{confidence: sm.Confidence, reason: sm.Reasoning}
	}
	return scores
}
