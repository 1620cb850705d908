package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/upb/search-gateway/config"
	"github.com/upb/search-gateway/handlers"
	"github.com/upb/search-gateway/internal/observability"
	"github.com/upb/search-gateway/repositories"
	"github.com/upb/search-gateway/repositories/postgres"
	"github.com/upb/search-gateway/services/audit"
	"github.com/upb/search-gateway/services/health"
	"github.com/upb/search-gateway/services/providers"
	"github.com/upb/search-gateway/services/providers/bing"
	"github.com/upb/search-gateway/services/providers/google"
	"github.com/upb/search-gateway/services/providers/serper"
	"github.com/upb/search-gateway/services/providers/tavily"
	"github.com/upb/search-gateway/services/routing"
	"github.com/upb/search-gateway/services/search"
	"github.com/upb/search-gateway/services/stats"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Attempt log; nil when DATABASE_URL is unset
	RepoFactory *postgres.RepositoryFactory
	Attempts    repositories.AttemptRepository
	AttemptLog  *audit.AuditService
	Pruner      *audit.Pruner

	stopPruner context.CancelFunc
	prunerDone chan struct{}

	// Search core
	Registry *providers.Registry
	Tracker  *health.Tracker
	Router   *routing.RoutingService
	Stats    *stats.Aggregator
	Search   *search.Service

	// Metrics is nil when METRICS_ENABLED is false
	Metrics *prometheus.Registry

	// HTTP
	SearchHandler *handlers.SearchHandler
	HealthHandler *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Database.Enabled() {
		if err := deps.initDatabase(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	} else {
		logger.Info("DATABASE_URL not set, attempt log disabled")
	}

	if err := deps.initProviders(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initSearch(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize search: %w", err)
	}

	deps.initMetrics(cfg)
	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Strings("engines", engineNames(deps.Registry.ConfiguredEngines())),
		zap.Bool("attempt_log", deps.AttemptLog != nil),
		zap.Bool("metrics", deps.Metrics != nil))
	return deps, nil
}

// initDatabase opens the attempt log database and creates its schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize attempt log schema: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.Attempts = factory.NewRepositories().Attempts

	return nil
}

// NewProviderRegistry builds adapters for every engine that has credentials
func NewProviderRegistry(cfg *config.Config) (*providers.Registry, error) {
	return providers.NewRegistryBuilder().
		WithProviderBuilder(providers.EngineSerper, serper.Build).
		WithProviderBuilder(providers.EngineTavily, tavily.Build).
		WithProviderBuilder(providers.EngineGoogle, google.Build).
		WithProviderBuilder(providers.EngineBing, bing.Build).
		Build(cfg.ProviderConfigs())
}

// initProviders initializes the provider registry with configured engines
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry, err := NewProviderRegistry(cfg)
	if err != nil {
		return err
	}

	for _, engine := range registry.ConfiguredEngines() {
		d.Logger.Info("registered search engine", zap.String("engine", string(engine)))
	}
	if registry.Count() == 0 {
		d.Logger.Warn("no search engines configured, every search will be degraded")
	}

	d.Registry = registry
	return nil
}

// HealthPolicy maps the search configuration onto the health state machine
func HealthPolicy(cfg config.SearchConfig) health.Policy {
	return health.Policy{
		FailureThreshold:     cfg.FailureThreshold,
		UnhealthyCooldown:    cfg.UnhealthyCooldown,
		RateLimitBackoffBase: cfg.RateLimitBackoffBase,
		RateLimitBackoffMax:  cfg.RateLimitBackoffMax,
		ProbeLease:           cfg.ProbeLease,
	}
}

func (d *Dependencies) initSearch(cfg *config.Config) error {
	d.Tracker = health.NewTracker(d.Registry.ConfiguredMap(), HealthPolicy(cfg.Search), health.SystemClock{}, d.Logger)
	d.Router = routing.NewRoutingService(routing.DefaultMatrix(), d.Registry, d.Tracker)
	d.Stats = stats.NewAggregator()

	var opts []search.ServiceOption
	if d.Attempts != nil {
		d.AttemptLog = audit.NewAuditService(d.Attempts, d.Logger, audit.Config{
			BufferSize:  cfg.Database.AuditBufferSize,
			WorkerCount: cfg.Database.AuditWorkers,
		})
		if err := d.AttemptLog.Start(); err != nil {
			return fmt.Errorf("failed to start attempt log: %w", err)
		}
		opts = append(opts, search.WithAttemptRecorder(d.AttemptLog))

		if cfg.Database.Retention > 0 {
			d.startPruner(cfg.Database)
		}
	}

	d.Search = search.NewService(
		search.Config{
			TotalDeadline:     cfg.Search.TotalDeadline,
			DefaultMaxResults: cfg.Search.DefaultMaxResults,
		},
		d.Registry,
		d.Router,
		d.Tracker,
		d.Stats,
		d.Logger,
		opts...,
	)
	return nil
}

func (d *Dependencies) startPruner(cfg config.DatabaseConfig) {
	d.Pruner = audit.NewPruner(d.Attempts, cfg.Retention, cfg.PruneInterval, d.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	d.stopPruner = cancel
	d.prunerDone = make(chan struct{})
	go func() {
		defer close(d.prunerDone)
		d.Pruner.Start(ctx)
	}()
}

func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		return
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		observability.NewCollector(d.Search),
	)
	d.Metrics = reg
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	// Typed nils must not leak into the handler interfaces
	var reader handlers.AttemptReader
	if d.Attempts != nil {
		reader = d.Attempts
	}
	var db *sql.DB
	if d.DB != nil {
		db = d.DB.DB
	}

	d.SearchHandler = handlers.NewSearchHandler(d.Search, reader, cfg.Search.DefaultMaxResults, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(db, d.Search, d.Logger)
}

func (d *Dependencies) closeDatabase() {
	if d.RepoFactory != nil {
		_ = d.RepoFactory.Close()
	}
}

// Close gracefully shuts down all dependencies. Pending attempt log rows are
// flushed before the database is closed.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopPruner != nil {
		d.stopPruner()
		<-d.prunerDone
	}

	if d.AttemptLog != nil {
		timeout := d.Config.Server.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 {
				timeout = remaining
			}
		}
		if err := d.AttemptLog.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop attempt log: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

func engineNames(engines []providers.Engine) []string {
	out := make([]string, len(engines))
	for i, e := range engines {
		out[i] = string(e)
	}
	return out
}
