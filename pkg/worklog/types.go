// Package worklog defines the core domain types for the daylog pipeline:
// raw messages, AI extractions, ticket matches, work items, reports, and
// daily schedules. All other pipeline packages share these types.
package worklog

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies where a raw message was collected from.
type Source string

const (
	SourceChat   Source = "chat"
	SourceEmail  Source = "email"
	SourceManual Source = "manual"
)

// Valid reports whether s is a known message source.
func (s Source) Valid() bool {
	switch s {
	case SourceChat, SourceEmail, SourceManual:
		return true
	}
	return false
}

// RawMessage is the canonical unit of collected communication.
// Collectors hand the pipeline one RawMessage per source message;
// it is immutable once created.
type RawMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Source    Source    `json:"source"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`

	// SourceID is the collector-supplied identifier, stable and unique
	// per (source, message). It anchors pipeline idempotency.
	SourceID string `json:"source_id"`
}

// Extraction is an AI-inferred candidate work description derived from a
// RawMessage. A message may yield zero or more extractions; the ordinal is
// the extraction's position within its message and is part of the dedup key.
type Extraction struct {
	MessageID        string   `json:"message_id"`
	SourceID         string   `json:"source_id"`
	Ordinal          int      `json:"ordinal"`
	Description      string   `json:"description"`
	Category         string   `json:"category,omitempty"`
	Priority         Priority `json:"priority,omitempty"`
	EstimatedMinutes *int     `json:"estimated_minutes,omitempty"`
	Keywords         []string `json:"keywords,omitempty"`
	Confidence       float64  `json:"confidence"`

	// Fallback marks extractions synthesized from the raw text after a
	// parse failure rather than returned by the inference service.
	Fallback bool `json:"fallback,omitempty"`
}

// DedupKey returns the idempotency key for the work item derived from this
// extraction: re-running the pipeline for the same message must map each
// ordinal to the same key.
func (e Extraction) DedupKey() string {
	return fmt.Sprintf("%s#%d", e.SourceID, e.Ordinal)
}

// Ticket is a locally cached copy of an externally owned ticket. The
// pipeline never creates or mutates tickets; collectors refresh the cache.
type Ticket struct {
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Project   string    `json:"project"`
	Labels    []string  `json:"labels,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TicketMatch is a scored correlation between an extraction and a ticket.
// At most one candidate per extraction is selected.
type TicketMatch struct {
	MessageID  string  `json:"message_id"`
	Ordinal    int     `json:"ordinal"`
	TicketKey  string  `json:"ticket_key"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
	Selected   bool    `json:"selected"`
}

// Priority orders work items for scheduling and reporting.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority maps a free-form priority string to a Priority. Empty and
// unrecognized values default to medium rather than failing the extraction.
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return p
	}
	return PriorityMedium
}

// Rank returns the scheduling rank of the priority; lower ranks schedule
// first. Unknown priorities rank after low.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// WorkItemStatus is the lifecycle status of a work item. Items are never
// deleted by the pipeline; cancellation is a terminal status.
type WorkItemStatus string

const (
	StatusPending    WorkItemStatus = "pending"
	StatusInProgress WorkItemStatus = "in_progress"
	StatusCompleted  WorkItemStatus = "completed"
	StatusCancelled  WorkItemStatus = "cancelled"
)

// WorkItem is the canonical, persisted unit of tracked work. It is created
// when an extraction clears validation routing (automatically or after
// human review) and mutated only by status transitions and manual edits.
type WorkItem struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	DedupKey         string         `json:"dedup_key"`
	Description      string         `json:"description"`
	Category         string         `json:"category"`
	Priority         Priority       `json:"priority"`
	EstimatedMinutes int            `json:"estimated_minutes"`
	ActualMinutes    *int           `json:"actual_minutes,omitempty"`
	Confidence       float64        `json:"confidence"`
	Status           WorkItemStatus `json:"status"`

	// NeedsReview flags items created from mid-confidence extractions.
	// They keep the normal status lifecycle but are excluded from report
	// totals until a human clears the flag.
	NeedsReview bool `json:"needs_review"`

	Tags      []string  `json:"tags,omitempty"`
	TicketKey *string   `json:"ticket_key,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Minutes returns the minutes this item contributes to a report: actual
// minutes once recorded, otherwise the estimate.
func (w WorkItem) Minutes() int {
	if w.ActualMinutes != nil {
		return *w.ActualMinutes
	}
	return w.EstimatedMinutes
}

// ReportType selects the period shape of a report.
type ReportType string

const (
	ReportDaily   ReportType = "daily"
	ReportWeekly  ReportType = "weekly"
	ReportMonthly ReportType = "monthly"
	ReportCustom  ReportType = "custom"
)

// ReportStatus tracks report generation. A failed report is distinct from a
// completed report with zero items; partial results are never published as
// completed.
type ReportStatus string

const (
	ReportGenerating ReportStatus = "generating"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
)

// Rollup is a per-group aggregate inside a report.
type Rollup struct {
	Count   int `json:"count"`
	Minutes int `json:"minutes"`
}

// Report aggregates work items over a date range. Reports are derived, not
// authoritative: regeneration creates a new report and supersedes the old
// one rather than mutating it.
type Report struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Type         ReportType        `json:"type"`
	PeriodStart  time.Time         `json:"period_start"`
	PeriodEnd    time.Time         `json:"period_end"`
	Template     string            `json:"template,omitempty"`
	TotalItems   int               `json:"total_items"`
	TotalMinutes int               `json:"total_minutes"`
	ByCategory   map[string]Rollup `json:"by_category,omitempty"`
	ByPriority   map[string]Rollup `json:"by_priority,omitempty"`

	// QualityScore is the fraction of included items whose confidence
	// meets the auto-approval threshold.
	QualityScore float64      `json:"quality_score"`
	Status       ReportStatus `json:"status"`
	SupersededBy string       `json:"superseded_by,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Allocation assigns part of a work item's estimate to a single day.
type Allocation struct {
	WorkItemID string `json:"work_item_id"`
	Minutes    int    `json:"minutes"`
}

// DailySchedule is one day's packed allocation of work items. It is derived
// and recomputed on each distribution run, never a source of truth.
type DailySchedule struct {
	Date         time.Time    `json:"date"`
	Slots        []Allocation `json:"slots"`
	TotalMinutes int          `json:"total_minutes"`

	// Overflow is set on the last day when the week ends with work still
	// unplaced. Overflow is a reportable outcome, not an error.
	Overflow bool `json:"overflow,omitempty"`
}

// Outcome is the terminal disposition of one pipeline run for a message.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeReview   Outcome = "review"
	OutcomeFallback Outcome = "fallback"
	OutcomeFailed   Outcome = "failed"
)

// CompletionEvent is published once per processed message so collaborators
// can observe pipeline results without polling the store.
type CompletionEvent struct {
	MessageID   string    `json:"message_id"`
	SourceID    string    `json:"source_id"`
	UserID      string    `json:"user_id"`
	Outcome     Outcome   `json:"outcome"`
	WorkItemIDs []string  `json:"work_item_ids,omitempty"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
