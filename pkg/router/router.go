// Package router classifies extraction/match pairs into the three-tier
// validation outcome: auto-approval, review queue, or manual-entry
// fallback. Classification is a pure function of the confidences and the
// configured thresholds; no state machine instance is persisted. Every
// extraction is classified independently.
package router

import (
	"github.com/daylogger/daylog/config"
	"github.com/daylogger/daylog/pkg/worklog"
)

// Tier is the validation tier an extraction routes to.
type Tier string

const (
	// TierAutoApprove creates a work item immediately with status pending.
	TierAutoApprove Tier = "AUTO_APPROVE"

	// TierNeedsReview creates a work item flagged for human confirmation;
	// it does not count toward reports until the flag is cleared.
	TierNeedsReview Tier = "NEEDS_REVIEW"

	// TierManualFallback creates no work item; the extraction is retained
	// and its description surfaced to the user as a suggestion only.
	TierManualFallback Tier = "MANUAL_FALLBACK"
)

// Decision is the routing outcome for one extraction.
type Decision struct {
	Tier Tier

	// NeedsReview is set for the middle tier; it is a boolean attribute
	// of the derived work item, not a separate status.
	NeedsReview bool

	// TicketKey is the selected match's ticket, carried onto the work
	// item when one was selected.
	TicketKey *string
}

// Router classifies extractions by confidence thresholds.
type Router struct {
	high   float64
	medium float64
}

// New creates a Router from pipeline configuration.
func New(cfg config.PipelineConfig) *Router {
	return &Router{high: cfg.HighThreshold, medium: cfg.MediumThreshold}
}

// Classify routes an extraction and its selected ticket match (nil when
// the matcher returned no candidate). Rules:
//
//   - confidence >= high AND (no match OR match confidence >= high):
//     AUTO_APPROVE
//   - confidence >= high but the selected match is weaker than high:
//     NEEDS_REVIEW (the item is plausible, the link is not)
//   - medium <= confidence < high: NEEDS_REVIEW
//   - confidence < medium: MANUAL_FALLBACK
func (r *Router) Classify(e worklog.Extraction, match *worklog.TicketMatch) Decision {
	var ticketKey *string
	if match != nil {
		k := match.TicketKey
		ticketKey = &k
	}

	switch {
	case e.Confidence >= r.high && (match == nil || match.Confidence >= r.high):
		return Decision{Tier: TierAutoApprove, TicketKey: ticketKey}
	case e.Confidence >= r.medium:
		return Decision{Tier: TierNeedsReview, NeedsReview: true, TicketKey: ticketKey}
	default:
		return Decision{Tier: TierManualFallback}
	}
}
