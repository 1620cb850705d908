package routing

import (
	"errors"
	"fmt"

	"github.com/upb/search-gateway/services/providers"
)

var (
	// ErrNoEnginesConfigured is returned when no engine has credentials
	ErrNoEnginesConfigured = errors.New("no search engines configured")

	// ErrEngineNotConfigured is returned when an override names an engine without credentials
	ErrEngineNotConfigured = errors.New("search engine not configured")
)

// HealthView is the subset of the health tracker routing reads
type HealthView interface {
	// Available reports whether an engine may take part in automatic routing
	Available(engine providers.Engine) bool

	// Disabled reports whether an engine has been permanently removed
	Disabled(engine providers.Engine) bool
}

// Candidate is one entry of a resolution order
type Candidate struct {
	Engine providers.Engine

	// Forced candidates are attempted regardless of their health state
	Forced bool
}

// Plan is the ordered list of engines to try for one request
type Plan struct {
	Candidates []Candidate

	// Override is set when the caller pinned an engine
	Override bool

	// LastResort is set when no healthy engine was left and every
	// configured engine is being tried
	LastResort bool
}

// Engines returns the engines of the plan in order
func (p Plan) Engines() []providers.Engine {
	out := make([]providers.Engine, len(p.Candidates))
	for i, c := range p.Candidates {
		out[i] = c.Engine
	}
	return out
}

// RoutingService turns an intent into a candidate order
type RoutingService struct {
	matrix   *Matrix
	registry *providers.Registry
	health   HealthView
}

// NewRoutingService creates a new routing service
func NewRoutingService(matrix *Matrix, registry *providers.Registry, health HealthView) *RoutingService {
	if matrix == nil {
		matrix = DefaultMatrix()
	}
	return &RoutingService{
		matrix:   matrix,
		registry: registry,
		health:   health,
	}
}

// Matrix returns the capability matrix in use
func (s *RoutingService) Matrix() *Matrix {
	return s.matrix
}

// Plan builds the candidate order for an intent type and optional override.
// Unconfigured engines never appear in a plan.
func (s *RoutingService) Plan(intent providers.IntentType, override *providers.Engine) (Plan, error) {
	if s.registry.Count() == 0 {
		return Plan{}, ErrNoEnginesConfigured
	}

	if override != nil {
		return s.planOverride(*override)
	}

	preferred := s.matrix.PreferenceOrder(intent)

	plan := Plan{Candidates: make([]Candidate, 0, len(preferred))}
	for _, engine := range preferred {
		if s.registry.IsConfigured(engine) && s.health.Available(engine) {
			plan.Candidates = append(plan.Candidates, Candidate{Engine: engine})
		}
	}
	if len(plan.Candidates) > 0 {
		return plan, nil
	}

	// Nothing healthy: try every configured engine that has not been disabled
	plan.LastResort = true
	for _, engine := range appendMissing(preferred, s.registry.ConfiguredEngines()) {
		if s.registry.IsConfigured(engine) && !s.health.Disabled(engine) {
			plan.Candidates = append(plan.Candidates, Candidate{Engine: engine, Forced: true})
		}
	}
	return plan, nil
}

func (s *RoutingService) planOverride(engine providers.Engine) (Plan, error) {
	if !s.registry.IsConfigured(engine) {
		return Plan{}, fmt.Errorf("%w: %s", ErrEngineNotConfigured, engine)
	}

	plan := Plan{Override: true}
	if !s.health.Disabled(engine) {
		plan.Candidates = []Candidate{{Engine: engine, Forced: true}}
	}
	return plan, nil
}
