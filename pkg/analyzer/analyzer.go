// Package analyzer calls the external text-inference service to extract
// candidate work descriptions from raw messages. Malformed responses are
// recovered locally with a low-confidence fallback extraction; transport
// failures propagate to the orchestrator for retry. Content is never
// silently dropped.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/daylogger/daylog/config"
	dlerrors "github.com/daylogger/daylog/pkg/errors"
	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/worklog"
)

// fallbackDescriptionLength caps the truncated raw text used as the
// fallback extraction description.
const fallbackDescriptionLength = 280

// approxCharsPerToken is the budget heuristic for thread context.
const approxCharsPerToken = 4

// Analyzer extracts work item candidates from raw messages.
type Analyzer struct {
	client Client
	cfg    config.PipelineConfig
	inf    config.InferenceConfig
	logger logging.Logger
}

// New creates an Analyzer.
func New(client Client, cfg config.PipelineConfig, inf config.InferenceConfig, logger logging.Logger) *Analyzer {
	return &Analyzer{
		client: client,
		cfg:    cfg,
		inf:    inf,
		logger: logger.With(logging.F("component", "analyzer")),
	}
}

// candidate is the JSON shape the inference service is asked to return,
// one element per work item.
type candidate struct {
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Priority     string   `json:"priority"`
	TimeSpent    *int     `json:"time_spent"`
	ProjectHints []string `json:"project_hints"`
	Confidence   *float64 `json:"confidence"`
}

// Analyze extracts zero or more work item candidates from msg. The thread
// slice provides optional surrounding context (recent messages from the
// same thread), injected into the prompt up to the configured token budget.
//
// A response the service returns but the analyzer cannot parse produces a
// single fallback extraction at the configured floor confidence. Transport
// and service errors are returned to the caller for retry.
func (a *Analyzer) Analyze(ctx context.Context, msg worklog.RawMessage, thread []worklog.RawMessage) ([]worklog.Extraction, error) {
	prompt, err := renderAnalysisPrompt(promptData{
		Sender:    msg.Sender,
		Source:    string(msg.Source),
		Timestamp: msg.Timestamp.Format("2006-01-02 15:04"),
		Body:      msg.Body,
		Context:   a.buildThreadContext(thread),
	})
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Complete(ctx, &CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   a.inf.MaxTokens,
		Temperature: a.inf.Temperature,
	})
	if err != nil {
		return nil, dlerrors.Classify(err, "analyze")
	}

	extractions, parseErr := a.parseCandidates(msg, resp.Content)
	if parseErr != nil {
		a.logger.Warn("unparseable inference response, using fallback extraction",
			logging.F("message_id", msg.ID),
			logging.Err(parseErr),
		)
		return []worklog.Extraction{a.fallbackExtraction(msg)}, nil
	}

	return extractions, nil
}

// parseCandidates decodes the service's free-text response into
// extractions. Any candidate with an out-of-range or missing confidence
// invalidates the whole response: out-of-range values are rejected, never
// clamped into the boundary.
func (a *Analyzer) parseCandidates(msg worklog.RawMessage, content string) ([]worklog.Extraction, error) {
	payload := stripCodeFences(content)

	var candidates []candidate
	if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
		// Some models return a single object instead of an array.
		var single candidate
		if err2 := json.Unmarshal([]byte(payload), &single); err2 != nil {
			return nil, dlerrors.NewPipelineError(dlerrors.CodeMalformedResponse, "parse", "response is not a JSON work item array", err)
		}
		candidates = []candidate{single}
	}

	extractions := make([]worklog.Extraction, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.Description) == "" {
			continue
		}
		if c.Confidence == nil {
			return nil, dlerrors.NewPipelineError(dlerrors.CodeMalformedResponse, "parse", "candidate is missing confidence", nil)
		}
		if *c.Confidence < 0 || *c.Confidence > 1 {
			return nil, dlerrors.NewPipelineError(dlerrors.CodeMalformedResponse, "parse",
				fmt.Sprintf("candidate confidence %v out of range [0,1]", *c.Confidence), nil)
		}

		var estimate *int
		if c.TimeSpent != nil && *c.TimeSpent > 0 {
			v := *c.TimeSpent
			estimate = &v
		}

		extractions = append(extractions, worklog.Extraction{
			MessageID:        msg.ID,
			SourceID:         msg.SourceID,
			Ordinal:          len(extractions),
			Description:      strings.TrimSpace(c.Description),
			Category:         normalizeCategory(c.Category),
			Priority:         worklog.ParsePriority(c.Priority),
			EstimatedMinutes: estimate,
			Keywords:         normalizeKeywords(c.ProjectHints),
			Confidence:       *c.Confidence,
		})
	}

	return extractions, nil
}

// fallbackExtraction builds the single low-confidence extraction used when
// the service responded with something unparseable. The raw description is
// surfaced to the user as a suggestion only.
func (a *Analyzer) fallbackExtraction(msg worklog.RawMessage) worklog.Extraction {
	desc := msg.Body
	if len(desc) > fallbackDescriptionLength {
		desc = desc[:fallbackDescriptionLength]
	}
	return worklog.Extraction{
		MessageID:   msg.ID,
		SourceID:    msg.SourceID,
		Ordinal:     0,
		Description: desc,
		Confidence:  a.cfg.FallbackConfidence,
		Fallback:    true,
	}
}

// buildThreadContext formats recent thread messages, newest last, dropping
// oldest messages first once the token budget is spent.
func (a *Analyzer) buildThreadContext(thread []worklog.RawMessage) string {
	if len(thread) == 0 || a.cfg.ContextTokenBudget <= 0 {
		return ""
	}

	budget := a.cfg.ContextTokenBudget * approxCharsPerToken
	lines := make([]string, 0, len(thread))
	used := 0

	// Walk newest to oldest so the most recent context survives the cut.
	for i := len(thread) - 1; i >= 0; i-- {
		m := thread[i]
		line := fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("15:04"), m.Sender, m.Body)
		if used+len(line) > budget {
			break
		}
		used += len(line)
		lines = append([]string{line}, lines...)
	}

	return strings.Join(lines, "\n")
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag, from the model output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// normalizeCategory lowercases the returned work category; anything the
// service left blank lands in "other" so report rollups stay grouped.
func normalizeCategory(s string) string {
	c := strings.ToLower(strings.TrimSpace(s))
	if c == "" {
		return "other"
	}
	return c
}

// normalizeKeywords lowercases and dedups keyword hints.
func normalizeKeywords(hints []string) []string {
	if len(hints) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(hints))
	out := make([]string, 0, len(hints))
	for _, h := range hints {
		k := strings.ToLower(strings.TrimSpace(h))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
