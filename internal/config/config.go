package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Cache driver names accepted by CACHE_DRIVER.
const (
	CacheDriverAuto     = "auto"
	CacheDriverKVRest   = "kv-rest"
	CacheDriverPostgres = "postgres"
	CacheDriverSQLite   = "sqlite"
	CacheDriverNone     = "none"
)

// Config holds the configuration for the dashboard service.
// Environment variables are parsed from the DASHBOARD_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Primary cache tier
	CacheDriver     string `envconfig:"CACHE_DRIVER" default:"auto"`
	KVRestURL       string `envconfig:"KV_REST_URL" default:""`
	KVRestToken     string `envconfig:"KV_REST_TOKEN" default:""`
	PostgresDSN     string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath      string `envconfig:"SQLITE_PATH" default:"data/cache.db"`
	CacheTTLSeconds int    `envconfig:"CACHE_TTL_SECONDS" default:"28800"`

	// Fallback cache tier
	StaticCacheDir string `envconfig:"STATIC_CACHE_DIR" default:"public/cache"`

	// Newsletter source
	NewsletterArchiveURL string `envconfig:"NEWSLETTER_ARCHIVE_URL" default:""`
	FetchTimeoutSeconds  int    `envconfig:"FETCH_TIMEOUT_SECONDS" default:"15"`

	// Calendar feeds, one ICS URL per bucket
	CalendarBlueURL         string `envconfig:"CALENDAR_BLUE_URL" default:""`
	CalendarGoldURL         string `envconfig:"CALENDAR_GOLD_URL" default:""`
	CalendarOriginalURL     string `envconfig:"CALENDAR_ORIGINAL_URL" default:""`
	CalendarLaunchURL       string `envconfig:"CALENDAR_LAUNCH_URL" default:""`
	CalendarCalBearsURL     string `envconfig:"CALENDAR_CALBEARS_URL" default:""`
	CalendarCampusGroupsURL string `envconfig:"CALENDAR_CAMPUS_GROUPS_URL" default:""`
	CalendarDaysAhead       int    `envconfig:"CALENDAR_DAYS_AHEAD" default:"150"`
	CalendarLimit           int    `envconfig:"CALENDAR_LIMIT" default:"150"`

	// AI provider (OpenAI-compatible chat completions)
	AIBaseURL        string   `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1"`
	AIAPIKey         string   `envconfig:"AI_API_KEY" default:""`
	AIPrimaryModel   string   `envconfig:"AI_PRIMARY_MODEL" default:"google/gemini-2.5-flash"`
	AIFallbackModels []string `envconfig:"AI_FALLBACK_MODELS" default:"openai/gpt-4o-mini,anthropic/claude-3.5-haiku"`
	AITimeoutSeconds int      `envconfig:"AI_TIMEOUT_SECONDS" default:"45"`

	// Master timeout around one full pipeline run
	PipelineTimeoutSeconds int `envconfig:"PIPELINE_TIMEOUT_SECONDS" default:"240"`

	// Canonical timezone for week windows and job schedules
	TimeZone string `envconfig:"TIME_ZONE" default:"America/Los_Angeles"`

	// Scheduled jobs
	CronSecret          string `envconfig:"CRON_SECRET" default:""`
	NewsletterRefreshAt string `envconfig:"NEWSLETTER_REFRESH_AT" default:"08:00"`
	CacheRefreshAt      string `envconfig:"CACHE_REFRESH_AT" default:"00:00"`

	// Health
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates the cache driver and derives it when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	if c.CacheDriver == "" || c.CacheDriver == CacheDriverAuto {
		if c.KVRestURL != "" {
			c.CacheDriver = CacheDriverKVRest
		} else {
			c.CacheDriver = CacheDriverNone
		}
	}

	allowed := map[string]bool{
		CacheDriverKVRest:   true,
		CacheDriverPostgres: true,
		CacheDriverSQLite:   true,
		CacheDriverNone:     true,
	}
	if !allowed[c.CacheDriver] {
		return fmt.Errorf("unsupported CACHE_DRIVER: %s", c.CacheDriver)
	}
	if c.CacheDriver == CacheDriverKVRest && c.KVRestURL == "" {
		return fmt.Errorf("DASHBOARD_KV_REST_URL is required when CACHE_DRIVER=kv-rest")
	}
	if c.CacheDriver == CacheDriverPostgres && c.PostgresDSN == "" {
		return fmt.Errorf("DASHBOARD_POSTGRES_DSN is required when CACHE_DRIVER=postgres")
	}

	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid TIME_ZONE %q: %w", c.TimeZone, err)
	}
	for _, at := range []string{c.NewsletterRefreshAt, c.CacheRefreshAt} {
		if _, _, err := ParseClock(at); err != nil {
			return err
		}
	}

	// Drop blanks left by trailing commas.
	models := c.AIFallbackModels[:0]
	for _, m := range c.AIFallbackModels {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	c.AIFallbackModels = models
	return nil
}

// New creates a new Config by parsing environment variables
// Environment variables should be prefixed with DASHBOARD_
// Example: DASHBOARD_HTTP_PORT, DASHBOARD_KV_REST_URL
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("DASHBOARD", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("cache_driver", cfg.CacheDriver).
		Int("cache_ttl_seconds", cfg.CacheTTLSeconds).
		Str("static_cache_dir", cfg.StaticCacheDir).
		Bool("newsletter_configured", cfg.NewsletterArchiveURL != "").
		Int("calendar_feeds", len(cfg.CalendarFeeds())).
		Str("ai_base_url", cfg.AIBaseURL).
		Str("ai_primary_model", cfg.AIPrimaryModel).
		Strs("ai_fallback_models", cfg.AIFallbackModels).
		Bool("ai_key_present", cfg.AIAPIKey != "").
		Bool("cron_secret_present", cfg.CronSecret != "").
		Str("time_zone", cfg.TimeZone).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	cfg := &Config{
		Environment: EnvTesting,
		LogLevel:    "debug",
		HTTPPort:    8080,
	}

	cfg.CacheDriver = CacheDriverNone
	cfg.SQLitePath = "data/cache.db"
	cfg.CacheTTLSeconds = 28800
	cfg.StaticCacheDir = "public/cache"

	cfg.FetchTimeoutSeconds = 5
	cfg.CalendarDaysAhead = 150
	cfg.CalendarLimit = 150

	cfg.AIBaseURL = "http://localhost:0"
	cfg.AIPrimaryModel = "primary-model"
	cfg.AIFallbackModels = []string{"fallback-model"}
	cfg.AITimeoutSeconds = 5
	cfg.PipelineTimeoutSeconds = 30

	cfg.TimeZone = "America/Los_Angeles"
	cfg.CronSecret = "test-secret"
	cfg.NewsletterRefreshAt = "08:00"
	cfg.CacheRefreshAt = "00:00"

	cfg.HealthIntervalSeconds = 30
	cfg.HealthProbeTimeoutSeconds = 2
	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Location returns the canonical timezone. ResolveDefaults has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CacheTTL returns the primary-tier TTL.
func (c *Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSeconds) * time.Second }

// FetchTimeout bounds a single scrape or feed request.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// AITimeout bounds a single model attempt.
func (c *Config) AITimeout() time.Duration { return time.Duration(c.AITimeoutSeconds) * time.Second }

// PipelineTimeout bounds a whole pipeline run.
func (c *Config) PipelineTimeout() time.Duration {
	return time.Duration(c.PipelineTimeoutSeconds) * time.Second
}

// CalendarFeeds returns the configured ICS feeds keyed by bucket name.
func (c *Config) CalendarFeeds() map[string]string {
	feeds := map[string]string{}
	for bucket, url := range map[string]string{
		"blue":         c.CalendarBlueURL,
		"gold":         c.CalendarGoldURL,
		"original":     c.CalendarOriginalURL,
		"launch":       c.CalendarLaunchURL,
		"calBears":     c.CalendarCalBearsURL,
		"campusGroups": c.CalendarCampusGroupsURL,
	} {
		if url != "" {
			feeds[bucket] = url
		}
	}
	return feeds
}

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q (expected HH:MM): %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}
