package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/upb/search-gateway/internal/shared"
	"github.com/upb/search-gateway/services"
	"github.com/upb/search-gateway/services/health"
	"github.com/upb/search-gateway/services/providers"
	"github.com/upb/search-gateway/services/routing"
	"github.com/upb/search-gateway/services/stats"
)

const tracerName = "github.com/upb/search-gateway/services/search"

// Config holds configuration for the search service
type Config struct {
	// TotalDeadline bounds one resolution across every attempt
	TotalDeadline time.Duration

	// DefaultMaxResults is used by Search when no cap is given
	DefaultMaxResults int
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		TotalDeadline:     20 * time.Second,
		DefaultMaxResults: 5,
	}
}

// Service resolves search intents against the configured engines, falling
// back in preference order and degrading when nothing works
type Service struct {
	config   Config
	registry *providers.Registry
	router   *routing.RoutingService
	tracker  *health.Tracker
	stats    *stats.Aggregator
	recorder AttemptRecorder
	logger   *zap.Logger
	tracer   trace.Tracer
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithAttemptRecorder sends every attempt to r
func WithAttemptRecorder(r AttemptRecorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithTracer replaces the global tracer
func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

// NewService creates a new search service
func NewService(
	config Config,
	registry *providers.Registry,
	router *routing.RoutingService,
	tracker *health.Tracker,
	aggregator *stats.Aggregator,
	logger *zap.Logger,
	opts ...ServiceOption,
) *Service {
	if config.TotalDeadline <= 0 {
		config.TotalDeadline = DefaultConfig().TotalDeadline
	}
	if config.DefaultMaxResults <= 0 {
		config.DefaultMaxResults = DefaultConfig().DefaultMaxResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		config:   config,
		registry: registry,
		router:   router,
		tracker:  tracker,
		stats:    aggregator,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search builds an intent from query and options and resolves it
func (s *Service) Search(ctx context.Context, query string, opts ...Option) (*Response, error) {
	intent := Intent{
		Query:      query,
		Type:       providers.IntentGeneral,
		MaxResults: s.config.DefaultMaxResults,
	}
	for _, opt := range opts {
		opt(&intent)
	}
	return s.Resolve(ctx, intent)
}

// Resolve runs one intent. It returns an error only for invalid requests or
// missing configuration; provider failures end in a degraded response.
func (s *Service) Resolve(ctx context.Context, intent Intent) (*Response, error) {
	intent, err := normalize(intent)
	if err != nil {
		return nil, err
	}

	plan, err := s.router.Plan(intent.Type, intent.EngineOverride)
	if err != nil {
		return nil, configurationError(err, intent)
	}

	requestID := shared.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = shared.WithRequestID(ctx, requestID)
	}

	logger := s.logger.With(
		zap.String("request_id", requestID),
		zap.String("intent", string(intent.Type)),
	)

	ctx, span := s.tracer.Start(ctx, "search.resolve", trace.WithAttributes(
		attribute.String("search.request_id", requestID),
		attribute.String("search.intent", string(intent.Type)),
		attribute.Int("search.max_results", intent.MaxResults),
		attribute.Bool("search.override", plan.Override),
		attribute.Bool("search.last_resort", plan.LastResort),
	))
	defer span.End()

	budget := s.config.TotalDeadline
	if intent.Deadline > 0 && intent.Deadline < budget {
		budget = intent.Deadline
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	logger.Debug("Resolving search",
		zap.Strings("plan", engineNames(plan.Engines())),
		zap.Bool("override", plan.Override),
		zap.Bool("last_resort", plan.LastResort),
		zap.Duration("budget", budget),
	)
	if plan.LastResort {
		logger.Warn("No healthy search engine, trying every configured engine",
			zap.Strings("plan", engineNames(plan.Engines())))
	}

	resp := &Response{
		Results:   []providers.SearchResult{},
		RequestID: requestID,
		Attempted: []providers.Engine{},
	}

	for i, candidate := range plan.Candidates {
		if ctx.Err() != nil {
			logger.Info("Search deadline reached before trying every engine",
				zap.Strings("skipped", engineNames(plan.Engines()[i:])))
			break
		}

		// A half-open engine admits one probe; a request that planned it but
		// lost the probe to a concurrent one skips it, possibly ending degraded.
		if !s.tracker.Acquire(candidate.Engine, candidate.Forced) {
			logger.Debug("Skipping search engine that became unavailable",
				zap.String("engine", string(candidate.Engine)))
			continue
		}

		provider, err := s.registry.GetProvider(candidate.Engine)
		if err != nil {
			logger.Error("Planned engine has no adapter", zap.String("engine", string(candidate.Engine)), zap.Error(err))
			continue
		}

		resp.Attempted = append(resp.Attempted, candidate.Engine)
		results, err := s.attempt(ctx, logger, provider, candidate, intent, len(plan.Candidates)-i)
		if err == nil && len(results) > 0 {
			engine := candidate.Engine
			resp.Results = results
			resp.EngineUsed = &engine
			break
		}
	}

	resp.Degraded = resp.EngineUsed == nil
	s.stats.RecordRequest(resp.Degraded)

	if resp.Degraded {
		span.SetAttributes(attribute.Bool("search.degraded", true))
		logger.Warn("Search degraded, no engine returned results",
			zap.Strings("attempted", engineNames(resp.Attempted)))
	} else {
		span.SetAttributes(attribute.String("search.engine_used", string(*resp.EngineUsed)))
		logger.Info("Search resolved",
			zap.String("engine", string(*resp.EngineUsed)),
			zap.Int("results", len(resp.Results)),
			zap.Int("attempts", len(resp.Attempted)),
		)
	}

	return resp, nil
}

// attempt calls one engine with its share of the remaining budget and feeds
// the outcome to the tracker, the aggregator and the attempt recorder
func (s *Service) attempt(
	ctx context.Context,
	logger *zap.Logger,
	provider providers.Provider,
	candidate routing.Candidate,
	intent Intent,
	remaining int,
) ([]providers.SearchResult, error) {
	engine := candidate.Engine

	share := s.config.TotalDeadline
	if deadline, ok := ctx.Deadline(); ok {
		share = time.Until(deadline) / time.Duration(remaining)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, share)
	defer cancel()

	attemptCtx, span := s.tracer.Start(attemptCtx, "search.attempt", trace.WithAttributes(
		attribute.String("search.engine", string(engine)),
		attribute.Bool("search.forced", candidate.Forced),
		attribute.Int64("search.budget_ms", share.Milliseconds()),
	))
	defer span.End()

	started := time.Now()
	results, err := provider.Execute(attemptCtx, providers.Query{
		Text:       intent.Query,
		MaxResults: intent.MaxResults,
		Type:       intent.Type,
	})
	latency := time.Since(started)

	attempt := Attempt{
		RequestID:  shared.RequestID(ctx),
		Engine:     engine,
		IntentType: intent.Type,
		Latency:    latency,
		Forced:     candidate.Forced,
		StartedAt:  started,
	}

	if err != nil {
		kind := providers.KindOf(err)
		if kind == providers.KindUnreachable && attemptCtx.Err() != nil {
			kind = providers.KindTimeout
		}

		// A caller that walked away says nothing about the engine
		if !errors.Is(ctx.Err(), context.Canceled) {
			s.tracker.Record(engine, health.Outcome{Kind: kind, RetryAfter: providers.RetryAfterOf(err)})
		}
		s.stats.RecordFailure(engine, kind)

		attempt.Outcome = string(kind)
		s.record(ctx, attempt)

		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		logger.Warn("Search engine attempt failed",
			zap.String("engine", string(engine)),
			zap.String("error_kind", string(kind)),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return nil, err
	}

	results = providers.Truncate(results, intent.MaxResults)

	s.tracker.Record(engine, health.Succeeded())
	s.stats.RecordSuccess(engine, len(results))

	attempt.ResultCount = len(results)
	attempt.Outcome = OutcomeSuccess
	if len(results) == 0 {
		attempt.Outcome = OutcomeEmpty
	}
	s.record(ctx, attempt)

	span.SetAttributes(attribute.Int("search.results", len(results)))
	logger.Debug("Search engine attempt succeeded",
		zap.String("engine", string(engine)),
		zap.Int("results", len(results)),
		zap.Duration("latency", latency),
	)
	return results, nil
}

func (s *Service) record(ctx context.Context, attempt Attempt) {
	if s.recorder != nil {
		s.recorder.RecordAttempt(ctx, attempt)
	}
}

// GetStats returns a copy of the attempt counters
func (s *Service) GetStats() stats.Snapshot {
	return s.stats.Snapshot()
}


// Health returns the health profile of every engine
func (s *Service) Health() []health.Profile {
	return s.tracker.Profiles()
}

// Summary reports which engines are configured and their health
func (s *Service) Summary() Summary {
	summary := Summary{
		AvailableEngines:    s.registry.ConfiguredEngines(),
		DefaultEngine:       s.router.Matrix().DefaultEngine(),
		PerEngineConfigured: s.registry.ConfiguredMap(),
		Health:              make(map[providers.Engine]health.State),
	}
	for _, p := range s.tracker.Profiles() {
		summary.Health[p.Engine] = p.State
	}
	return summary
}

func normalize(intent Intent) (Intent, error) {
	intent.Query = strings.TrimSpace(intent.Query)
	if intent.Query == "" {
		return intent, services.NewValidationError("query cannot be empty")
	}

	if intent.MaxResults <= 0 {
		return intent, services.NewValidationError("max results must be greater than zero").
			WithDetail("max_results", intent.MaxResults)
	}

	if intent.Type == "" {
		intent.Type = providers.IntentGeneral
	}
	t, ok := providers.ParseIntentType(string(intent.Type))
	if !ok {
		return intent, services.NewValidationError("unknown search type").
			WithDetail("type", string(intent.Type))
	}
	intent.Type = t

	if intent.EngineOverride != nil {
		e, ok := providers.ParseEngine(string(*intent.EngineOverride))
		if !ok {
			return intent, services.NewValidationError("unknown search engine").
				WithDetail("engine", string(*intent.EngineOverride))
		}
		intent.EngineOverride = &e
	}

	if intent.Deadline < 0 {
		intent.Deadline = 0
	}

	return intent, nil
}

func configurationError(err error, intent Intent) error {
	switch {
	case errors.Is(err, routing.ErrEngineNotConfigured):
		return services.NewConfigurationError("search engine not configured", err).
			WithDetail("engine", string(*intent.EngineOverride))
	case errors.Is(err, routing.ErrNoEnginesConfigured):
		return services.NewConfigurationError("no search engines configured", err)
	default:
		return services.WrapInternal("failed to plan search", err)
	}
}

func engineNames(engines []providers.Engine) []string {
	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = string(e)
	}
	return names
}
