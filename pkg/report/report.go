// Package report composes rollup reports over stored work items. Reports
// are derived data: generation never mutates items, and regenerating a
// period supersedes the previous report instead of rewriting it.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/worklog"
)

// ItemLister supplies the work items whose lifetime overlaps a period.
type ItemLister interface {
	ListForPeriod(ctx context.Context, userID string, start, end time.Time) ([]worklog.WorkItem, error)
}

// ReportStore persists reports and their supersession chain.
type ReportStore interface {
	CreateReport(ctx context.Context, r *worklog.Report) error
	UpdateReport(ctx context.Context, r *worklog.Report) error
	LatestCompleted(ctx context.Context, userID string, typ worklog.ReportType, start, end time.Time) (*worklog.Report, error)
	MarkSuperseded(ctx context.Context, id, supersededBy string) error
}

// Composer generates reports for a user and period.
type Composer struct {
	items         ItemLister
	store         ReportStore
	highThreshold float64
	logger        logging.Logger
	now           func() time.Time
}

// New creates a Composer. highThreshold is the confidence bar an item must
// meet to count toward the report's quality score.
func New(items ItemLister, store ReportStore, highThreshold float64, logger logging.Logger) *Composer {
	return &Composer{
		items:         items,
		store:         store,
		highThreshold: highThreshold,
		logger:        logger,
		now:           time.Now,
	}
}

// Generate composes a report for the period. The report is persisted in
// status generating first, so a crash mid-generation leaves an inspectable
// row rather than nothing; it transitions to completed or failed, never to
// a partial result published as complete. A previously completed report for
// the same user, type, and period is marked superseded by the new one.
func (c *Composer) Generate(ctx context.Context, userID string, typ worklog.ReportType, start, end time.Time, template string) (*worklog.Report, error) {
	r := &worklog.Report{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        typ,
		PeriodStart: start.UTC(),
		PeriodEnd:   end.UTC(),
		Template:    template,
		Status:      worklog.ReportGenerating,
		CreatedAt:   c.now().UTC(),
	}
	if err := c.store.CreateReport(ctx, r); err != nil {
		return nil, fmt.Errorf("creating report: %w", err)
	}

	items, err := c.items.ListForPeriod(ctx, userID, start, end)
	if err != nil {
		r.Status = worklog.ReportFailed
		if uerr := c.store.UpdateReport(ctx, r); uerr != nil {
			c.logger.Error("failed to mark report failed",
				logging.F("report_id", r.ID), logging.Err(uerr))
		}
		return nil, fmt.Errorf("listing items for report: %w", err)
	}

	prev, err := c.store.LatestCompleted(ctx, userID, typ, start, end)
	if err != nil {
		c.logger.Warn("could not look up prior report for supersession",
			logging.F("user_id", userID), logging.Err(err))
	}

	Compose(r, items, c.highThreshold)
	r.Status = worklog.ReportCompleted
	if err := c.store.UpdateReport(ctx, r); err != nil {
		return nil, fmt.Errorf("completing report: %w", err)
	}

	if prev != nil && prev.ID != r.ID {
		if err := c.store.MarkSuperseded(ctx, prev.ID, r.ID); err != nil {
			c.logger.Warn("failed to supersede prior report",
				logging.F("prior_report_id", prev.ID), logging.Err(err))
		}
	}

	c.logger.Info("report generated",
		logging.F("report_id", r.ID),
		logging.F("user_id", userID),
		logging.F("type", string(typ)),
		logging.F("items", r.TotalItems),
		logging.F("minutes", r.TotalMinutes))
	return r, nil
}

// Compose fills a report's aggregates from the given items. Cancelled items
// and items still flagged for review are excluded; each included item
// contributes its actual minutes when recorded, otherwise its estimate. The
// quality score is the fraction of included items whose confidence meets
// highThreshold; an empty period scores zero.
func Compose(r *worklog.Report, items []worklog.WorkItem, highThreshold float64) {
	r.ByCategory = make(map[string]worklog.Rollup)
	r.ByPriority = make(map[string]worklog.Rollup)
	r.TotalItems = 0
	r.TotalMinutes = 0

	confident := 0
	for _, it := range items {
		if it.Status == worklog.StatusCancelled || it.NeedsReview {
			continue
		}
		minutes := it.Minutes()
		r.TotalItems++
		r.TotalMinutes += minutes

		cat := it.Category
		if cat == "" {
			cat = "uncategorized"
		}
		cr := r.ByCategory[cat]
		cr.Count++
		cr.Minutes += minutes
		r.ByCategory[cat] = cr

		pr := r.ByPriority[string(it.Priority)]
		pr.Count++
		pr.Minutes += minutes
		r.ByPriority[string(it.Priority)] = pr

		if it.Confidence >= highThreshold {
			confident++
		}
	}

	if r.TotalItems > 0 {
		r.QualityScore = float64(confident) / float64(r.TotalItems)
	} else {
		r.QualityScore = 0
	}
}
