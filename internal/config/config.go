// Package config assembles the process-wide configuration from environment
// variables. A Config is built once at startup and injected into every
// constructor that needs it; nothing in this package is a package-level
// global.
package config

import (
	"time"

	"eventcrawl/internal/envconfig"
)

// Config holds all environment-derived settings for the ingestor process.
type Config struct {
	// Server
	Port        int
	LogLevel    string
	LogFormat   string // "json" or "text"
	CORSOrigins []string

	// Persistence / external services
	DatabaseURL  string // unused by the core pipeline, read and logged only
	RedisURL     string
	BackendURL   string
	ServiceToken string

	// AI providers
	OpenAIAPIKey    string
	AnthropicAPIKey string
	EnableAI        bool
	AIDailyBudget   float64
	AIMonthlyBudget float64

	// Crawling / throttling
	MaxConcurrentPerDomain int
	CrawlLockTTLSeconds    int
	RequestTimeout         time.Duration

	// Geocoding defaults (consumed by the external geocoding collaborator,
	// read here only so the ingestor can pass them through unmodified)
	NominatimUserAgent string
	DefaultLat         float64
	DefaultLng         float64
	DefaultRadiusKM    float64

	// Worker
	WorkerPollInterval     time.Duration
	WorkerMaxConcurrentJob int
	WorkerMaxDeepFetches   int

	// SourceRegistryPath points at the YAML file of per-source ScraperConfigs
	// (internal/sourceconfig). Empty means no HTML sources are pre-configured
	// and every /crawl/trigger for source_type=scraper must supply its own
	// scraper_config inline.
	SourceRegistryPath string
}

// Load builds a Config from the current process environment.
func Load() *Config {
	return &Config{
		Port:        envconfig.GetEnvInt("PORT", 8080),
		LogLevel:    envconfig.GetEnvString("LOG_LEVEL", "info"),
		LogFormat:   envconfig.GetEnvString("LOG_FORMAT", "json"),
		CORSOrigins: envconfig.GetEnvStringList("CORS_ORIGINS", []string{"*"}),

		DatabaseURL:  envconfig.GetEnvString("DATABASE_URL", ""),
		RedisURL:     envconfig.GetEnvString("REDIS_URL", "redis://localhost:6379/0"),
		BackendURL:   envconfig.GetEnvString("BACKEND_URL", ""),
		ServiceToken: envconfig.GetEnvString("SERVICE_TOKEN", ""),

		OpenAIAPIKey:    envconfig.GetEnvString("OPENAI_API_KEY", ""),
		AnthropicAPIKey: envconfig.GetEnvString("ANTHROPIC_API_KEY", ""),
		EnableAI:        envconfig.GetEnvBool("ENABLE_AI", false),
		AIDailyBudget:   envconfig.GetEnvFloat("AI_DAILY_BUDGET_USD", 5.0),
		AIMonthlyBudget: envconfig.GetEnvFloat("AI_MONTHLY_BUDGET_USD", 100.0),

		MaxConcurrentPerDomain: envconfig.GetEnvInt("MAX_CONCURRENT_PER_DOMAIN", 2),
		CrawlLockTTLSeconds:    envconfig.GetEnvInt("CRAWL_LOCK_TTL_SECONDS", 300),
		RequestTimeout:         time.Duration(envconfig.GetEnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,

		NominatimUserAgent: envconfig.GetEnvString("NOMINATIM_USER_AGENT", "family-event-crawler/1.0"),
		DefaultLat:         envconfig.GetEnvFloat("DEFAULT_LAT", 49.0069),
		DefaultLng:         envconfig.GetEnvFloat("DEFAULT_LNG", 8.4037),
		DefaultRadiusKM:    envconfig.GetEnvFloat("DEFAULT_RADIUS_KM", 25.0),

		WorkerPollInterval:     time.Duration(envconfig.GetEnvInt("WORKER_POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		WorkerMaxConcurrentJob: envconfig.GetEnvInt("WORKER_MAX_CONCURRENT_JOBS", 4),
		WorkerMaxDeepFetches:   envconfig.GetEnvInt("WORKER_MAX_DEEP_FETCHES", 20),

		SourceRegistryPath: envconfig.GetEnvString("SOURCE_REGISTRY_PATH", ""),
	}
}
