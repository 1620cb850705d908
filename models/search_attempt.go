package models

import (
	"time"

	"github.com/google/uuid"
)

// Attempt outcomes besides the provider error kinds
const (
	AttemptOutcomeSuccess = "success"
	AttemptOutcomeEmpty   = "empty"
)

// SearchAttempt is one provider call made while resolving a search. It
// carries metadata only; results are never stored.
type SearchAttempt struct {
	ID          uuid.UUID `json:"id" db:"id"`
	RequestID   string    `json:"request_id" db:"request_id"`
	Engine      string    `json:"engine" db:"engine"`
	IntentType  string    `json:"intent_type" db:"intent_type"`
	Outcome     string    `json:"outcome" db:"outcome"` // success, empty or an error kind
	ResultCount int       `json:"result_count" db:"result_count"`
	LatencyMs   int64     `json:"latency_ms" db:"latency_ms"`
	Forced      bool      `json:"forced" db:"forced"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the SearchAttempt model
func (SearchAttempt) TableName() string {
	return "search_attempts"
}

// NewSearchAttempt creates a new SearchAttempt instance
func NewSearchAttempt(requestID, engine, intentType, outcome string) *SearchAttempt {
	now := time.Now().UTC()
	return &SearchAttempt{
		ID:         uuid.New(),
		RequestID:  requestID,
		Engine:     engine,
		IntentType: intentType,
		Outcome:    outcome,
		StartedAt:  now,
		CreatedAt:  now,
	}
}

// WithTiming sets when the attempt started and how long it took
func (a *SearchAttempt) WithTiming(startedAt time.Time, latency time.Duration) *SearchAttempt {
	a.StartedAt = startedAt.UTC()
	a.LatencyMs = latency.Milliseconds()
	return a
}

// WithResults sets the number of results the engine returned
func (a *SearchAttempt) WithResults(count int) *SearchAttempt {
	a.ResultCount = count
	return a
}

// WithForced marks an attempt that bypassed the health gate
func (a *SearchAttempt) WithForced(forced bool) *SearchAttempt {
	a.Forced = forced
	return a
}

// Succeeded reports whether the engine answered with a valid payload
func (a *SearchAttempt) Succeeded() bool {
	return a.Outcome == AttemptOutcomeSuccess || a.Outcome == AttemptOutcomeEmpty
}
