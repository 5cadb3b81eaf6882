// Package tickets caches externally owned tickets per user. The pipeline
// only reads the cache; collectors refresh it from the tracker of record.
package tickets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	dlerrors "github.com/daylogger/daylog/pkg/errors"
	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/worklog"
)

// Repository stores ticket snapshots.
type Repository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewRepository creates a ticket repository.
func NewRepository(pool *pgxpool.Pool, logger logging.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger.With(logging.F("component", "ticket_repository")),
	}
}

// Upsert refreshes one ticket's snapshot. The tracker owns the data; last
// write wins on the cached copy.
func (r *Repository) Upsert(ctx context.Context, userID string, t worklog.Ticket) error {
	query := `
		INSERT INTO tickets (user_id, ticket_key, title, status, project, labels, source_updated_at, refreshed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id, ticket_key) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			project = EXCLUDED.project,
			labels = EXCLUDED.labels,
			source_updated_at = EXCLUDED.source_updated_at,
			refreshed_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		userID, t.Key, t.Title, t.Status, t.Project, t.Labels, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert ticket: %w", err)
	}
	return nil
}

// Refresh replaces a user's cached snapshot with the given tickets in one
// transaction. Tickets no longer present at the tracker are removed.
func (r *Repository) Refresh(ctx context.Context, userID string, ts []worklog.Ticket) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin refresh: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM tickets WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear ticket cache: %w", err)
	}
	for _, t := range ts {
		_, err := tx.Exec(ctx, `
			INSERT INTO tickets (user_id, ticket_key, title, status, project, labels, source_updated_at, refreshed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		`, userID, t.Key, t.Title, t.Status, t.Project, t.Labels, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert ticket %s: %w", t.Key, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit refresh: %w", err)
	}

	r.logger.Info("ticket cache refreshed",
		logging.F("user_id", userID),
		logging.F("tickets", len(ts)))
	return nil
}

// ListForUser returns the user's cached tickets, most recently updated at
// the tracker first.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]worklog.Ticket, error) {
	query := `
		SELECT ticket_key, title, status, project, labels, source_updated_at
		FROM tickets
		WHERE user_id = $1
		ORDER BY source_updated_at DESC, ticket_key ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var out []worklog.Ticket
	for rows.Next() {
		var t worklog.Ticket
		if err := rows.Scan(&t.Key, &t.Title, &t.Status, &t.Project, &t.Labels, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get returns one cached ticket.
func (r *Repository) Get(ctx context.Context, userID, key string) (*worklog.Ticket, error) {
	query := `
		SELECT ticket_key, title, status, project, labels, source_updated_at
		FROM tickets
		WHERE user_id = $1 AND ticket_key = $2
	`
	var t worklog.Ticket
	err := r.pool.QueryRow(ctx, query, userID, key).
		Scan(&t.Key, &t.Title, &t.Status, &t.Project, &t.Labels, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", key, dlerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &t, nil
}
