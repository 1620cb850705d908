package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/upb/search-gateway/services/providers"
)

// PlaceholderAPIKey is the value shipped in example env files; it never
// counts as a credential
const PlaceholderAPIKey = "your-api-key"

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Search        SearchConfig
	Engines       EnginesConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig holds PostgreSQL configuration for the attempt log.
// The log is disabled when ConnectionString is empty.
type DatabaseConfig struct {
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	AuditWorkers     int
	AuditBufferSize  int

	// Retention is how long attempt rows are kept; zero keeps them forever
	Retention     time.Duration
	PruneInterval time.Duration
}

// SearchConfig holds the resolution budget and health policy knobs
type SearchConfig struct {
	TotalDeadline        time.Duration
	DefaultMaxResults    int
	FailureThreshold     int
	UnhealthyCooldown    time.Duration
	RateLimitBackoffBase time.Duration
	RateLimitBackoffMax  time.Duration
	ProbeLease           time.Duration
}

// EnginesConfig holds per-engine credentials and endpoints
type EnginesConfig struct {
	Serper EngineConfig
	Tavily EngineConfig
	Google EngineConfig
	Bing   EngineConfig
}

// EngineConfig holds one search engine's configuration
type EngineConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	// SearchEngineID is the Google programmable search engine id (cx)
	SearchEngineID string

	// Market is the Bing market code
	Market string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Load()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Load reads the configuration from the environment without validating it
func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			ConnectionString: getEnv("DATABASE_URL", ""),
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AuditWorkers:     getEnvAsInt("ATTEMPT_LOG_WORKERS", 2),
			AuditBufferSize:  getEnvAsInt("ATTEMPT_LOG_BUFFER", 1000),
			Retention:        getEnvAsDuration("ATTEMPT_LOG_RETENTION", 7*24*time.Hour),
			PruneInterval:    getEnvAsDuration("ATTEMPT_LOG_PRUNE_INTERVAL", time.Hour),
		},
		Search: SearchConfig{
			TotalDeadline:        getEnvAsDuration("SEARCH_TOTAL_DEADLINE", 20*time.Second),
			DefaultMaxResults:    getEnvAsInt("SEARCH_DEFAULT_MAX_RESULTS", 5),
			FailureThreshold:     getEnvAsInt("SEARCH_FAILURE_THRESHOLD", 3),
			UnhealthyCooldown:    getEnvAsDuration("SEARCH_UNHEALTHY_COOLDOWN", 60*time.Second),
			RateLimitBackoffBase: getEnvAsDuration("SEARCH_RATE_LIMIT_BACKOFF_BASE", 30*time.Second),
			RateLimitBackoffMax:  getEnvAsDuration("SEARCH_RATE_LIMIT_BACKOFF_MAX", 120*time.Second),
			ProbeLease:           getEnvAsDuration("SEARCH_PROBE_LEASE", 30*time.Second),
		},
		Engines: EnginesConfig{
			Serper: EngineConfig{
				APIKey:  getCredential("SERPER_API_KEY"),
				BaseURL: getEnv("SERPER_BASE_URL", ""),
				Timeout: getEnvAsDuration("SERPER_TIMEOUT", 10*time.Second),
			},
			Tavily: EngineConfig{
				APIKey:  getCredential("TAVILY_API_KEY"),
				BaseURL: getEnv("TAVILY_BASE_URL", ""),
				Timeout: getEnvAsDuration("TAVILY_TIMEOUT", 15*time.Second),
			},
			Google: EngineConfig{
				APIKey:         getCredential("GOOGLE_SEARCH_API_KEY"),
				BaseURL:        getEnv("GOOGLE_SEARCH_BASE_URL", ""),
				Timeout:        getEnvAsDuration("GOOGLE_SEARCH_TIMEOUT", 10*time.Second),
				SearchEngineID: getCredential("GOOGLE_SEARCH_CX"),
			},
			Bing: EngineConfig{
				APIKey:  getCredential("BING_SEARCH_API_KEY"),
				BaseURL: getEnv("BING_SEARCH_BASE_URL", ""),
				Timeout: getEnvAsDuration("BING_SEARCH_TIMEOUT", 10*time.Second),
				Market:  getEnv("BING_SEARCH_MARKET", "en-US"),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Search.TotalDeadline <= 0 {
		return fmt.Errorf("search total deadline must be positive")
	}
	if c.Search.DefaultMaxResults <= 0 {
		return fmt.Errorf("search default max results must be positive")
	}
	if c.Search.FailureThreshold <= 0 {
		return fmt.Errorf("search failure threshold must be positive")
	}
	if c.Search.UnhealthyCooldown <= 0 || c.Search.RateLimitBackoffBase <= 0 {
		return fmt.Errorf("search cooldowns must be positive")
	}
	if c.Search.RateLimitBackoffMax < c.Search.RateLimitBackoffBase {
		return fmt.Errorf("rate limit backoff max must not be below the base")
	}
	if c.Search.ProbeLease <= 0 {
		return fmt.Errorf("search probe lease must be positive")
	}

	// At least one engine must be usable in production
	if c.IsProduction() && len(c.ConfiguredEngines()) == 0 {
		return fmt.Errorf("at least one search engine must be configured in production")
	}

	if c.Database.Retention < 0 {
		return fmt.Errorf("attempt log retention must not be negative")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// ProviderConfigs returns adapter configuration for every engine that has
// credentials. Google also needs a search engine id.
func (c *Config) ProviderConfigs() map[providers.Engine]providers.ProviderConfig {
	out := make(map[providers.Engine]providers.ProviderConfig)

	add := func(engine providers.Engine, ec EngineConfig) {
		if ec.APIKey == "" {
			return
		}
		pc := providers.DefaultProviderConfig()
		pc.APIKey = ec.APIKey
		pc.SearchEngineID = ec.SearchEngineID
		pc.Market = ec.Market
		if ec.BaseURL != "" {
			pc.BaseURL = ec.BaseURL
		}
		if ec.Timeout > 0 {
			pc.Timeout = ec.Timeout
		}
		out[engine] = pc
	}

	add(providers.EngineSerper, c.Engines.Serper)
	add(providers.EngineTavily, c.Engines.Tavily)
	if c.Engines.Google.SearchEngineID != "" {
		add(providers.EngineGoogle, c.Engines.Google)
	}
	add(providers.EngineBing, c.Engines.Bing)

	return out
}

// ConfiguredEngines lists engines with usable credentials in canonical order
func (c *Config) ConfiguredEngines() []providers.Engine {
	configs := c.ProviderConfigs()
	out := make([]providers.Engine, 0, len(configs))
	for _, e := range providers.AllEngines() {
		if _, ok := configs[e]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Enabled reports whether the attempt log should be written
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != ""
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return c.ConnectionString
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString == "" {
		return "disabled"
	}
	u, err := url.Parse(c.ConnectionString)
	if err != nil || u.Host == "" {
		return "host=<from DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	db := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, db)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

// getCredential reads a secret, treating the placeholder as unset
func getCredential(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == PlaceholderAPIKey {
		return ""
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
