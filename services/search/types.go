package search

import (
	"context"
	"time"

	"github.com/upb/search-gateway/services/health"
	"github.com/upb/search-gateway/services/providers"
)

// Intent is one logical search request
type Intent struct {
	// Query is the text to search for
	Query string

	// Type selects the preference order; empty means general
	Type providers.IntentType

	// MaxResults caps the number of results; must be positive
	MaxResults int

	// EngineOverride pins the request to a single engine
	EngineOverride *providers.Engine

	// Deadline shortens the total time budget when positive
	Deadline time.Duration
}

// Response is always returned for a valid intent, degraded when no engine
// produced results
type Response struct {
	Results    []providers.SearchResult `json:"results"`
	EngineUsed *providers.Engine        `json:"engine_used"`
	Degraded   bool                     `json:"degraded"`
	RequestID  string                   `json:"request_id"`
	Attempted  []providers.Engine       `json:"attempted"`
}

// Summary describes the configured engines for diagnostics
type Summary struct {
	AvailableEngines    []providers.Engine                `json:"available_engines"`
	DefaultEngine       providers.Engine                  `json:"default_engine"`
	PerEngineConfigured map[providers.Engine]bool         `json:"engines_configured"`
	Health              map[providers.Engine]health.State `json:"health"`
}

// Outcome labels used in the attempt log
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
)

// Attempt describes one provider call
type Attempt struct {
	RequestID   string
	Engine      providers.Engine
	IntentType  providers.IntentType
	Outcome     string
	ResultCount int
	Latency     time.Duration
	Forced      bool
	StartedAt   time.Time
}

// AttemptRecorder receives every attempt. Implementations must not block.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt)
}

// Option customizes an Intent built by Search
type Option func(*Intent)

// WithType sets the intent type
func WithType(t providers.IntentType) Option {
	return func(i *Intent) { i.Type = t }
}

// WithMaxResults sets the result cap
func WithMaxResults(n int) Option {
	return func(i *Intent) { i.MaxResults = n }
}

// WithEngine pins the request to one engine
func WithEngine(e providers.Engine) Option {
	return func(i *Intent) { i.EngineOverride = &e }
}

// WithDeadline shortens the total time budget
func WithDeadline(d time.Duration) Option {
	return func(i *Intent) { i.Deadline = d }
}
