// Package store holds the Postgres repositories for the pipeline's
// persistent state: raw messages, work items, retained suggestions, and
// reports. All repositories share a pgxpool and map missing rows to the
// package-level sentinel errors.
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

// MessageState tracks where a stored message is in its pipeline run.
type MessageState string

const (
	MessagePending    MessageState = "pending"
	MessageProcessing MessageState = "processing"
	MessageCompleted  MessageState = "completed"
	MessageFailed     MessageState = "failed"

	// MessageCancelled marks a message whose source was withdrawn (the
	// user deleted it) before or during a pipeline run. Cancellation is
	// terminal: SetState never moves a cancelled message elsewhere.
	MessageCancelled MessageState = "cancelled"
)

// StoredMessage is a raw message with its processing state.
type StoredMessage struct {
	worklog.RawMessage
	State     MessageState
	LastError string
	Attempts  int
	UpdatedAt time.Time
}

// MessageRepository persists raw messages.
type MessageRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewMessageRepository creates a message repository.
func NewMessageRepository(pool *pgxpool.Pool, logger logging.Logger) *MessageRepository {
	return &MessageRepository{
		pool:   pool,
		logger: logger.With(logging.F("component", "message_repository")),
	}
}

// Create inserts a raw message. source_id is unique per user; inserting a
// message the collector already handed over returns the existing row's ID
// without error, so collectors can re-deliver safely.
func (r *MessageRepository) Create(ctx context.Context, m *worklog.RawMessage) error {
	query := `
		INSERT INTO raw_messages (
			id, user_id, source, sender, body, message_ts, source_id,
			state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', NOW(), NOW())
		ON CONFLICT (user_id, source_id) DO NOTHING
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		m.ID, m.UserID, string(m.Source), m.Sender, m.Body, m.Timestamp, m.SourceID,
	).Scan(&m.ID)

	if errors.Is(err, pgx.ErrNoRows) {
		err = r.pool.QueryRow(ctx,
			`SELECT id FROM raw_messages WHERE user_id = $1 AND source_id = $2`,
			m.UserID, m.SourceID,
		).Scan(&m.ID)
		if err != nil {
			return fmt.Errorf("failed to query existing message: %w", err)
		}
		r.logger.Debug("message already stored",
			logging.F("source_id", m.SourceID),
			logging.F("message_id", m.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetByID retrieves a stored message.
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*StoredMessage, error) {
	query := `
		SELECT id, user_id, source, sender, body, message_ts, source_id,
		       state, COALESCE(last_error, ''), attempts, updated_at
		FROM raw_messages
		WHERE id = $1
	`
	m := &StoredMessage{}
	var source string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.UserID, &source, &m.Sender, &m.Body, &m.Timestamp, &m.SourceID,
		&m.State, &m.LastError, &m.Attempts, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, dlerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	m.Source = worklog.Source(source)
	return m, nil
}

// SetState transitions a message's processing state and records the last
// error, bumping the attempt counter on failure. A cancelled message never
// leaves the cancelled state; the attempted transition returns ErrCancelled.
func (r *MessageRepository) SetState(ctx context.Context, id string, state MessageState, lastError string) error {
	query := `
		UPDATE raw_messages SET
			state = $2,
			last_error = NULLIF($3, ''),
			attempts = attempts + CASE WHEN $2 = 'failed' THEN 1 ELSE 0 END,
			updated_at = NOW()
		WHERE id = $1 AND state <> 'cancelled'
	`
	tag, err := r.pool.Exec(ctx, query, id, string(state), lastError)
	if err != nil {
		return fmt.Errorf("failed to set message state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current string
		if qerr := r.pool.QueryRow(ctx,
			`SELECT state FROM raw_messages WHERE id = $1`, id,
		).Scan(&current); qerr == nil && MessageState(current) == MessageCancelled {
			return fmt.Errorf("message %s: %w", id, dlerrors.ErrCancelled)
		}
		return fmt.Errorf("message %s: %w", id, dlerrors.ErrNotFound)
	}
	return nil
}

// Cancel marks a message cancelled, e.g. when the user deleted the source
// message. Completed messages cannot be cancelled; their work items already
// exist and stay subject to the normal work item lifecycle.
func (r *MessageRepository) Cancel(ctx context.Context, id string) error {
	query := `
		UPDATE raw_messages SET state = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND state <> 'completed'
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to cancel message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current string
		if qerr := r.pool.QueryRow(ctx,
			`SELECT state FROM raw_messages WHERE id = $1`, id,
		).Scan(&current); qerr == nil {
			return fmt.Errorf("message %s is %s: %w", id, current, dlerrors.ErrInvalidState)
		}
		return fmt.Errorf("message %s: %w", id, dlerrors.ErrNotFound)
	}
	return nil
}

// ListFailed returns messages whose last pipeline run failed, oldest first,
// for the attention view.
func (r *MessageRepository) ListFailed(ctx context.Context, userID string, limit int) ([]*StoredMessage, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `
		SELECT id, user_id, source, sender, body, message_ts, source_id,
		       state, COALESCE(last_error, ''), attempts, updated_at
		FROM raw_messages
		WHERE user_id = $1 AND state = 'failed'
		ORDER BY updated_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed messages: %w", err)
	}
	defer rows.Close()

	var out []*StoredMessage
	for rows.Next() {
		m := &StoredMessage{}
		var source string
		if err := rows.Scan(
			&m.ID, &m.UserID, &source, &m.Sender, &m.Body, &m.Timestamp, &m.SourceID,
			&m.State, &m.LastError, &m.Attempts, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Source = worklog.Source(source)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListPending returns messages awaiting a pipeline run, oldest first.
func (r *MessageRepository) ListPending(ctx context.Context, userID string, limit int) ([]*StoredMessage, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `
		SELECT id, user_id, source, sender, body, message_ts, source_id,
		       state, COALESCE(last_error, ''), attempts, updated_at
		FROM raw_messages
		WHERE user_id = $1 AND state = 'pending'
		ORDER BY message_ts ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	defer rows.Close()

	var out []*StoredMessage
	for rows.Next() {
		m := &StoredMessage{}
		var source string
		if err := rows.Scan(
			&m.ID, &m.UserID, &source, &m.Sender, &m.Body, &m.Timestamp, &m.SourceID,
			&m.State, &m.LastError, &m.Attempts, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Source = worklog.Source(source)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListThread returns up to limit prior messages from the same sender and
// source, newest first, for use as inference context.
func (r *MessageRepository) ListThread(ctx context.Context, userID string, source worklog.Source, sender string, before time.Time, limit int) ([]worklog.RawMessage, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	query := `
		SELECT id, user_id, source, sender, body, message_ts, source_id
		FROM raw_messages
		WHERE user_id = $1 AND source = $2 AND sender = $3 AND message_ts < $4
		ORDER BY message_ts DESC
		LIMIT $5
	`
	rows, err := r.pool.Query(ctx, query, userID, string(source), sender, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread: %w", err)
	}
	defer rows.Close()

	var out []worklog.RawMessage
	for rows.Next() {
		var m worklog.RawMessage
		var src string
		if err := rows.Scan(&m.ID, &m.UserID, &src, &m.Sender, &m.Body, &m.Timestamp, &m.SourceID); err != nil {
			return nil, fmt.Errorf("failed to scan thread message: %w", err)
		}
		m.Source = worklog.Source(src)
		out = append(out, m)
	}
	return out, rows.Err()
}
