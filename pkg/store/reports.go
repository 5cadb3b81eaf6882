package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	dlerrors "github.com/daylogger/daylog/pkg/errors"
	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/worklog"
)

// ReportRepository persists generated reports and their supersession
// chain. Rollup maps are stored as JSONB.
type ReportRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewReportRepository creates a report repository.
func NewReportRepository(pool *pgxpool.Pool, logger logging.Logger) *ReportRepository {
	return &ReportRepository{
		pool:   pool,
		logger: logger.With(logging.F("component", "report_repository")),
	}
}

// CreateReport inserts a report row, normally in status generating.
func (r *ReportRepository) CreateReport(ctx context.Context, rep *worklog.Report) error {
	byCategory, err := json.Marshal(rep.ByCategory)
	if err != nil {
		return fmt.Errorf("failed to marshal by_category: %w", err)
	}
	byPriority, err := json.Marshal(rep.ByPriority)
	if err != nil {
		return fmt.Errorf("failed to marshal by_priority: %w", err)
	}

	query := `
		INSERT INTO reports (
			id, user_id, report_type, period_start, period_end, template,
			total_items, total_minutes, by_category, by_priority,
			quality_score, status, superseded_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14)
	`
	_, err = r.pool.Exec(ctx, query,
		rep.ID, rep.UserID, string(rep.Type), rep.PeriodStart, rep.PeriodEnd, rep.Template,
		rep.TotalItems, rep.TotalMinutes, byCategory, byPriority,
		rep.QualityScore, string(rep.Status), rep.SupersededBy, rep.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// UpdateReport rewrites a report's aggregates and status.
func (r *ReportRepository) UpdateReport(ctx context.Context, rep *worklog.Report) error {
	byCategory, err := json.Marshal(rep.ByCategory)
	if err != nil {
		return fmt.Errorf("failed to marshal by_category: %w", err)
	}
	byPriority, err := json.Marshal(rep.ByPriority)
	if err != nil {
		return fmt.Errorf("failed to marshal by_priority: %w", err)
	}

	query := `
		UPDATE reports SET
			total_items = $2,
			total_minutes = $3,
			by_category = $4,
			by_priority = $5,
			quality_score = $6,
			status = $7
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		rep.ID, rep.TotalItems, rep.TotalMinutes, byCategory, byPriority,
		rep.QualityScore, string(rep.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report %s: %w", rep.ID, dlerrors.ErrNotFound)
	}
	return nil
}

const reportColumns = `
	id, user_id, report_type, period_start, period_end, COALESCE(template, ''),
	total_items, total_minutes, by_category, by_priority,
	quality_score, status, COALESCE(superseded_by, ''), created_at
`

// GetReport retrieves a report by ID.
func (r *ReportRepository) GetReport(ctx context.Context, id string) (*worklog.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	rep, err := scanReport(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, dlerrors.ErrNotFound)
	}
	return rep, err
}

// LatestCompleted returns the newest completed, non-superseded report for
// the exact user, type, and period, or nil when none exists.
func (r *ReportRepository) LatestCompleted(ctx context.Context, userID string, typ worklog.ReportType, start, end time.Time) (*worklog.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE user_id = $1 AND report_type = $2
		  AND period_start = $3 AND period_end = $4
		  AND status = 'completed' AND superseded_by IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	rep, err := scanReport(r.pool.QueryRow(ctx, query, userID, string(typ), start, end))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rep, err
}

// MarkSuperseded links an old report to its replacement.
func (r *ReportRepository) MarkSuperseded(ctx context.Context, id, supersededBy string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reports SET superseded_by = $2 WHERE id = $1`,
		id, supersededBy)
	if err != nil {
		return fmt.Errorf("failed to mark report superseded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report %s: %w", id, dlerrors.ErrNotFound)
	}
	return nil
}

func scanReport(row pgx.Row) (*worklog.Report, error) {
	rep := &worklog.Report{}
	var typ, status string
	var byCategory, byPriority []byte
	err := row.Scan(
		&rep.ID, &rep.UserID, &typ, &rep.PeriodStart, &rep.PeriodEnd, &rep.Template,
		&rep.TotalItems, &rep.TotalMinutes, &byCategory, &byPriority,
		&rep.QualityScore, &status, &rep.SupersededBy, &rep.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rep.Type = worklog.ReportType(typ)
	rep.Status = worklog.ReportStatus(status)
	if err := json.Unmarshal(byCategory, &rep.ByCategory); err != nil {
		rep.ByCategory = nil
	}
	if err := json.Unmarshal(byPriority, &rep.ByPriority); err != nil {
		rep.ByPriority = nil
	}
	return rep, nil
}
