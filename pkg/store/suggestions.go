package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/worklog"
)

// SuggestionRepository retains low-confidence extractions that routed to
// manual fallback. They never become work items automatically; the user
// sees them as prompts for manual entry.
type SuggestionRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewSuggestionRepository creates a suggestion repository.
func NewSuggestionRepository(pool *pgxpool.Pool, logger logging.Logger) *SuggestionRepository {
	return &SuggestionRepository{
		pool:   pool,
		logger: logger.With(logging.F("component", "suggestion_repository")),
	}
}

// Save retains a fallback extraction. Re-saving the same (message, ordinal)
// pair is a no-op, keeping retries idempotent.
func (r *SuggestionRepository) Save(ctx context.Context, userID string, e worklog.Extraction) error {
	query := `
		INSERT INTO suggestions (
			user_id, message_id, ordinal, description,
			estimated_minutes, confidence, from_fallback, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (message_id, ordinal) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		userID, e.MessageID, e.Ordinal, e.Description,
		e.EstimatedMinutes, e.Confidence, e.Fallback,
	)
	if err != nil {
		return fmt.Errorf("failed to save suggestion: %w", err)
	}
	return nil
}

// Suggestion is a retained extraction awaiting manual entry.
type Suggestion struct {
	UserID           string  `json:"user_id"`
	MessageID        string  `json:"message_id"`
	Ordinal          int     `json:"ordinal"`
	Description      string  `json:"description"`
	EstimatedMinutes *int    `json:"estimated_minutes,omitempty"`
	Confidence       float64 `json:"confidence"`
	FromFallback     bool    `json:"from_fallback"`
}

// List returns a user's retained suggestions, newest first.
func (r *SuggestionRepository) List(ctx context.Context, userID string, limit int) ([]Suggestion, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `
		SELECT user_id, message_id, ordinal, description,
		       estimated_minutes, confidence, from_fallback
		FROM suggestions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		var s Suggestion
		if err := rows.Scan(&s.UserID, &s.MessageID, &s.Ordinal, &s.Description,
			&s.EstimatedMinutes, &s.Confidence, &s.FromFallback); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
