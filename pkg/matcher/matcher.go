// Package matcher correlates extractions against the user's cached tickets.
// Two signals are scored: keyword-set overlap between the extraction and
// the ticket title/labels, and a semantic ranking pass through the
// inference service. The final confidence is the maximum of the two — a
// strong keyword hit is never diluted by a weak semantic pass.
package matcher

import (
	"context"
	"sort"
	"strings"

	"github.com/daylogger/daylog/config"
	"github.com/daylogger/daylog/pkg/analyzer"
	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/worklog"
)

// TieBreak orders two tickets with identical match confidence. The default
// prefers the most recently updated ticket; deployments can substitute
// their own comparator.
type TieBreak func(a, b worklog.Ticket) bool

// MostRecentlyUpdated is the default tie-breaker.
func MostRecentlyUpdated(a, b worklog.Ticket) bool {
	return a.UpdatedAt.After(b.UpdatedAt)
}

// Matcher produces ranked ticket match candidates for an extraction.
type Matcher struct {
	client   analyzer.Client
	cfg      config.PipelineConfig
	inf      config.InferenceConfig
	tieBreak TieBreak
	logger   logging.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithTieBreak overrides the tie-breaking comparator.
func WithTieBreak(tb TieBreak) Option {
	return func(m *Matcher) {
		m.tieBreak = tb
	}
}

// New creates a Matcher.
func New(client analyzer.Client, cfg config.PipelineConfig, inf config.InferenceConfig, logger logging.Logger, opts ...Option) *Matcher {
	m := &Matcher{
		client:   client,
		cfg:      cfg,
		inf:      inf,
		tieBreak: MostRecentlyUpdated,
		logger:   logger.With(logging.F("component", "matcher")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match scores the extraction against the given ticket snapshot and
// returns ranked candidates, strongest first, with the top candidate
// marked selected. Candidates below the configured floor are discarded
// entirely; an empty result means the extraction proceeds without a
// ticket link.
//
// A failed or unparseable semantic pass degrades to keyword-only scoring;
// it never aborts the match step.
func (m *Matcher) Match(ctx context.Context, e worklog.Extraction, tickets []worklog.Ticket) ([]worklog.TicketMatch, error) {
	if len(tickets) == 0 {
		return nil, nil
	}

	keywordScores := make(map[string]float64, len(tickets))
	for _, t := range tickets {
		keywordScores[t.Key] = keywordScore(e.Keywords, t)
	}

	semantic := m.semanticScores(ctx, e, m.rankCandidates(tickets, keywordScores))

	byKey := make(map[string]worklog.Ticket, len(tickets))
	matches := make([]worklog.TicketMatch, 0, len(tickets))
	for _, t := range tickets {
		byKey[t.Key] = t

		score := keywordScores[t.Key]
		reason := "keyword overlap with ticket title and labels"
		if s, ok := semantic[t.Key]; ok && s.confidence > score {
			score = s.confidence
			reason = s.reason
		}
		if score < m.cfg.MatchFloor {
			continue
		}

		matches = append(matches, worklog.TicketMatch{
			MessageID:  e.MessageID,
			Ordinal:    e.Ordinal,
			TicketKey:  t.Key,
			Confidence: score,
			Reason:     reason,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return m.tieBreak(byKey[matches[i].TicketKey], byKey[matches[j].TicketKey])
	})

	if len(matches) > 0 {
		matches[0].Selected = true
	}
	return matches, nil
}

// rankCandidates picks the tickets sent to the semantic pass: the top-K by
// keyword score, keeping snapshot order within equal scores so the pass is
// deterministic.
func (m *Matcher) rankCandidates(tickets []worklog.Ticket, keywordScores map[string]float64) []worklog.Ticket {
	k := m.cfg.RankCandidates
	if k <= 0 || k > len(tickets) {
		k = len(tickets)
	}
	ordered := make([]worklog.Ticket, len(tickets))
	copy(ordered, tickets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return keywordScores[ordered[i].Key] > keywordScores[ordered[j].Key]
	})
	return ordered[:k]
}

// keywordScore is the Jaccard ratio between the extraction keyword set and
// the token set of the ticket's title and labels.
func keywordScore(keywords []string, t worklog.Ticket) float64 {
	if len(keywords) == 0 {
		return 0
	}

	ticketTokens := tokenize(t.Title)
	for _, l := range t.Labels {
		for tok := range tokenize(l) {
			ticketTokens[tok] = true
		}
	}
	// The ticket key itself is a strong token ("PROJ-123" in the message).
	ticketTokens[strings.ToLower(t.Key)] = true

	if len(ticketTokens) == 0 {
		return 0
	}

	keywordSet := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		keywordSet[strings.ToLower(k)] = true
	}

	intersection := 0
	for k := range keywordSet {
		if ticketTokens[k] {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}

	union := len(keywordSet) + len(ticketTokens) - intersection
	return float64(intersection) / float64(union)
}

// tokenize splits text into a lowercase token set, keeping ticket-key
// shapes like "proj-123" intact.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-'
	}) {
		f = strings.Trim(f, "-")
		if len(f) > 1 {
			tokens[f] = true
		}
	}
	return tokens
}
