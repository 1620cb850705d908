package providers

import (
	"context"
	"strings"
	"time"
)

// Engine identifies a third-party search provider
type Engine string

const (
	EngineSerper Engine = "serper"
	EngineTavily Engine = "tavily"
	EngineGoogle Engine = "google"
	EngineBing   Engine = "bing"
)

// AllEngines lists every known engine in canonical order
func AllEngines() []Engine {
	return []Engine{EngineSerper, EngineTavily, EngineGoogle, EngineBing}
}

// ParseEngine converts a name into a known engine
func ParseEngine(name string) (Engine, bool) {
	e := Engine(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range AllEngines() {
		if e == known {
			return e, true
		}
	}
	return "", false
}

// IntentType is the logical category of a search
type IntentType string

const (
	IntentGeneral   IntentType = "general"
	IntentAIContext IntentType = "ai_context"
	IntentNews      IntentType = "news"
	IntentAcademic  IntentType = "academic"
)

// AllIntentTypes lists every intent type
func AllIntentTypes() []IntentType {
	return []IntentType{IntentGeneral, IntentAIContext, IntentNews, IntentAcademic}
}

// ParseIntentType converts a name into a known intent type
func ParseIntentType(name string) (IntentType, bool) {
	t := IntentType(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range AllIntentTypes() {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Provider is the uniform contract every search engine adapter implements
type Provider interface {
	// Engine returns the engine this adapter talks to
	Engine() Engine

	// Execute runs one search. The deadline is carried by ctx; failures are
	// returned as *ProviderError.
	Execute(ctx context.Context, q Query) ([]SearchResult, error)
}

// Query is what an adapter receives for one attempt
type Query struct {
	// Text is the user query
	Text string

	// MaxResults caps the number of results returned
	MaxResults int

	// Type lets adapters tune provider-specific parameters
	Type IntentType
}

// SearchResult is a single normalized hit
type SearchResult struct {
	Title        string `json:"title"`
	URL          string `json:"url"`
	Snippet      string `json:"snippet"`
	SourceEngine Engine `json:"source_engine"`
}

// ProviderConfig holds common configuration for adapters
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout is the adapter's own upper bound for one call
	Timeout time.Duration

	// SearchEngineID is the Google custom search engine id (cx)
	SearchEngineID string

	// Market is passed to providers that localize results
	Market string

	// Additional headers
	Headers map[string]string
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 10 * time.Second,
		Market:  "en-US",
		Headers: make(map[string]string),
	}
}
