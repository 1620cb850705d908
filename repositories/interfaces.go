package repositories

import (
	"context"
	"time"

	"github.com/upb/search-gateway/models"
)

// AttemptRepository handles search attempt log operations
type AttemptRepository interface {
	// Insert stores one attempt
	Insert(ctx context.Context, attempt *models.SearchAttempt) error

	// InsertBatch stores several attempts in one transaction
	InsertBatch(ctx context.Context, attempts []*models.SearchAttempt) error

	// GetByRequestID returns the attempts of one resolution in call order
	GetByRequestID(ctx context.Context, requestID string) ([]*models.SearchAttempt, error)

	// ListRecent returns the newest attempts, optionally for one engine
	ListRecent(ctx context.Context, engine string, limit int) ([]*models.SearchAttempt, error)

	// CountByOutcome groups attempts since a point in time by engine and outcome
	CountByOutcome(ctx context.Context, since time.Time) ([]OutcomeCount, error)

	// DeleteOlderThan prunes the log and returns the number of rows removed
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// OutcomeCount is one row of CountByOutcome
type OutcomeCount struct {
	Engine  string `json:"engine"`
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}

// Repositories holds all repository instances
type Repositories struct {
	Attempts AttemptRepository
}
