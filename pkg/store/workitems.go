package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	dlerrors "github.com/daylogger/daylog/pkg/errors"
	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/worklog"
)

// WorkItemRepository persists work items. The dedup_key column carries a
// unique constraint; CreateIfAbsent leans on it for pipeline idempotency.
type WorkItemRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewWorkItemRepository creates a work item repository.
func NewWorkItemRepository(pool *pgxpool.Pool, logger logging.Logger) *WorkItemRepository {
	return &WorkItemRepository{
		pool:   pool,
		logger: logger.With(logging.F("component", "workitem_repository")),
	}
}

const workItemColumns = `
	id, user_id, dedup_key, description, category, priority,
	estimated_minutes, actual_minutes, confidence, status, needs_review,
	tags, ticket_key, message_id, created_at, updated_at
`

// CreateIfAbsent inserts a work item keyed by its dedup key. If an item
// with the same key already exists the existing row is loaded into w and
// created is false. Re-running a pipeline stage therefore never duplicates
// items.
func (r *WorkItemRepository) CreateIfAbsent(ctx context.Context, w *worklog.WorkItem) (created bool, err error) {
	query := `
		INSERT INTO work_items (
			id, user_id, dedup_key, description, category, priority,
			estimated_minutes, actual_minutes, confidence, status, needs_review,
			tags, ticket_key, message_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (dedup_key) DO NOTHING
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		w.ID, w.UserID, w.DedupKey, w.Description, w.Category, string(w.Priority),
		w.EstimatedMinutes, w.ActualMinutes, w.Confidence, string(w.Status), w.NeedsReview,
		w.Tags, w.TicketKey, nullIfEmpty(w.MessageID),
	).Scan(&w.CreatedAt, &w.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		existing, gerr := r.getBy(ctx, "dedup_key = $1", w.DedupKey)
		if gerr != nil {
			return false, fmt.Errorf("failed to load existing work item: %w", gerr)
		}
		*w = *existing
		r.logger.Debug("work item already exists",
			logging.F("dedup_key", w.DedupKey),
			logging.F("work_item_id", w.ID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create work item: %w", err)
	}
	return true, nil
}

// GetByID retrieves a work item.
func (r *WorkItemRepository) GetByID(ctx context.Context, id string) (*worklog.WorkItem, error) {
	return r.getBy(ctx, "id = $1", id)
}

func (r *WorkItemRepository) getBy(ctx context.Context, where string, args ...interface{}) (*worklog.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE ` + where
	row := r.pool.QueryRow(ctx, query, args...)
	w, err := scanWorkItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("work item: %w", dlerrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ListForPeriod returns a user's work items created within [start, end).
// Cancelled items are included so callers can decide how to treat them.
func (r *WorkItemRepository) ListForPeriod(ctx context.Context, userID string, start, end time.Time) ([]worklog.WorkItem, error) {
	query := `
		SELECT ` + workItemColumns + `
		FROM work_items
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	defer rows.Close()

	var out []worklog.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// ListOpen returns a user's schedulable items (pending or in progress),
// oldest first.
func (r *WorkItemRepository) ListOpen(ctx context.Context, userID string) ([]worklog.WorkItem, error) {
	query := `
		SELECT ` + workItemColumns + `
		FROM work_items
		WHERE user_id = $1 AND status IN ('pending', 'in_progress')
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open work items: %w", err)
	}
	defer rows.Close()

	var out []worklog.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// ListNeedingReview returns items still awaiting human confirmation.
func (r *WorkItemRepository) ListNeedingReview(ctx context.Context, userID string, limit int) ([]worklog.WorkItem, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `
		SELECT ` + workItemColumns + `
		FROM work_items
		WHERE user_id = $1 AND needs_review AND status <> 'cancelled'
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list review items: %w", err)
	}
	defer rows.Close()

	var out []worklog.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a work item's lifecycle status.
func (r *WorkItemRepository) UpdateStatus(ctx context.Context, id string, status worklog.WorkItemStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE work_items SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update work item status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("work item %s: %w", id, dlerrors.ErrNotFound)
	}
	return nil
}

// ClearReview confirms a reviewed item, optionally correcting its minutes.
func (r *WorkItemRepository) ClearReview(ctx context.Context, id string, actualMinutes *int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE work_items SET
			needs_review = FALSE,
			actual_minutes = COALESCE($2, actual_minutes),
			updated_at = NOW()
		WHERE id = $1
	`, id, actualMinutes)
	if err != nil {
		return fmt.Errorf("failed to clear review flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("work item %s: %w", id, dlerrors.ErrNotFound)
	}
	return nil
}

// RecordActualMinutes sets the tracked time for an item.
func (r *WorkItemRepository) RecordActualMinutes(ctx context.Context, id string, minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("actual minutes must be non-negative: %w", dlerrors.ErrValidation)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE work_items SET actual_minutes = $2, updated_at = NOW() WHERE id = $1`,
		id, minutes)
	if err != nil {
		return fmt.Errorf("failed to record minutes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("work item %s: %w", id, dlerrors.ErrNotFound)
	}
	return nil
}

func scanWorkItem(row pgx.Row) (*worklog.WorkItem, error) {
	w := &worklog.WorkItem{}
	var priority, status string
	var messageID *string
	err := row.Scan(
		&w.ID, &w.UserID, &w.DedupKey, &w.Description, &w.Category, &priority,
		&w.EstimatedMinutes, &w.ActualMinutes, &w.Confidence, &status, &w.NeedsReview,
		&w.Tags, &w.TicketKey, &messageID, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan work item: %w", err)
	}
	w.Priority = worklog.Priority(priority)
	w.Status = worklog.WorkItemStatus(status)
	w.MessageID = derefString(messageID)
	return w, nil
}
