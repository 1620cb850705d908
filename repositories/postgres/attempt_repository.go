package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/search-gateway/models"
	"github.com/upb/search-gateway/repositories"
)

const attemptColumns = `id, request_id, engine, intent_type, outcome, result_count,
		latency_ms, forced, started_at, created_at`

const insertAttemptQuery = `
	INSERT INTO search_attempts (
		id, request_id, engine, intent_type, outcome, result_count,
		latency_ms, forced, started_at, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// AttemptRepository implements the repositories.AttemptRepository interface
type AttemptRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAttemptRepository creates a new attempt repository
func NewAttemptRepository(db *DB, logger *zap.Logger) *AttemptRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptRepository{
		db:     db,
		logger: logger,
	}
}

var _ repositories.AttemptRepository = (*AttemptRepository)(nil)

// Insert inserts a new attempt row
func (r *AttemptRepository) Insert(ctx context.Context, attempt *models.SearchAttempt) error {
	if err := insertAttempt(ctx, r.db, attempt); err != nil {
		return err
	}

	r.logger.Debug("search attempt inserted",
		zap.String("request_id", attempt.RequestID),
		zap.String("engine", attempt.Engine),
		zap.String("outcome", attempt.Outcome))
	return nil
}

// InsertBatch inserts several attempts atomically
func (r *AttemptRepository) InsertBatch(ctx context.Context, attempts []*models.SearchAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	return r.db.InTransaction(ctx, func(ctx context.Context, exec Executor) error {
		for _, a := range attempts {
			if err := insertAttempt(ctx, exec, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByRequestID returns the attempts of one resolution in call order
func (r *AttemptRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.SearchAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM search_attempts
		WHERE request_id = $1
		ORDER BY started_at ASC
	`
	return r.queryAttempts(ctx, query, requestID)
}

// ListRecent returns the newest attempts. An empty engine matches all.
func (r *AttemptRepository) ListRecent(ctx context.Context, engine string, limit int) ([]*models.SearchAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + attemptColumns + `
		FROM search_attempts
		WHERE ($1 = '' OR engine = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`
	return r.queryAttempts(ctx, query, engine, limit)
}

// CountByOutcome groups attempts since a point in time by engine and outcome
func (r *AttemptRepository) CountByOutcome(ctx context.Context, since time.Time) ([]repositories.OutcomeCount, error) {
	query := `
		SELECT engine, outcome, COUNT(*)
		FROM search_attempts
		WHERE started_at >= $1
		GROUP BY engine, outcome
		ORDER BY engine, outcome
	`

	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count search attempts: %w", err)
	}
	defer rows.Close()

	var counts []repositories.OutcomeCount
	for rows.Next() {
		var c repositories.OutcomeCount
		if err := rows.Scan(&c.Engine, &c.Outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome counts: %w", err)
	}
	return counts, nil
}

// DeleteOlderThan prunes attempts that started before the given time
func (r *AttemptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM search_attempts WHERE started_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune search attempts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func insertAttempt(ctx context.Context, exec Executor, a *models.SearchAttempt) error {
	_, err := exec.ExecContext(ctx, insertAttemptQuery,
		a.ID,
		a.RequestID,
		a.Engine,
		a.IntentType,
		a.Outcome,
		a.ResultCount,
		a.LatencyMs,
		a.Forced,
		a.StartedAt,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert search attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) queryAttempts(ctx context.Context, query string, args ...interface{}) ([]*models.SearchAttempt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query search attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.SearchAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search attempts: %w", err)
	}
	return attempts, nil
}

func scanAttempt(rows *sql.Rows) (*models.SearchAttempt, error) {
	a := &models.SearchAttempt{}
	err := rows.Scan(
		&a.ID,
		&a.RequestID,
		&a.Engine,
		&a.IntentType,
		&a.Outcome,
		&a.ResultCount,
		&a.LatencyMs,
		&a.Forced,
		&a.StartedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan search attempt: %w", err)
	}
	return a, nil
}
