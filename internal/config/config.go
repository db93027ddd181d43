package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// OpenF1 feed
	OpenF1BaseURL    string        `envconfig:"OPENF1_BASE_URL" default:"https://api.openf1.org/v1"`
	OpenF1Timeout    time.Duration `envconfig:"OPENF1_TIMEOUT" default:"15s"`
	OpenF1RateLimit  float64       `envconfig:"OPENF1_RATE_LIMIT" default:"3"`
	OpenF1Burst      int           `envconfig:"OPENF1_BURST" default:"6"`
	OpenF1MaxRetries int           `envconfig:"OPENF1_MAX_RETRIES" default:"3"`

	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"gridpicks"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"gridpicks"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`
	RunMigrations    bool   `envconfig:"RUN_MIGRATIONS" default:"true"`

	// Redis
	RedisEnabled  bool   `envconfig:"REDIS_ENABLED" default:"true"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Caching TTL (in seconds)
	CacheTTLCalendar int `envconfig:"CACHE_TTL_CALENDAR" default:"300"`  // 5 minutes
	CacheTTLDrivers  int `envconfig:"CACHE_TTL_DRIVERS" default:"3600"`  // 1 hour
	CacheTTLResults  int `envconfig:"CACHE_TTL_RESULTS" default:"86400"` // 24 hours, complete results only

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP
	HTTPPort       int           `envconfig:"HTTP_PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	EnableMetrics  bool          `envconfig:"ENABLE_METRICS" default:"true"`

	// Auth collaborator
	JWTSecret string `envconfig:"SUPABASE_JWT_SECRET" required:"true"`

	// Leaderboard
	LeaderboardCandidateLimit int `envconfig:"LEADERBOARD_CANDIDATE_LIMIT" default:"200"`
	LeaderboardDefaultLimit   int `envconfig:"LEADERBOARD_DEFAULT_LIMIT" default:"5"`
	LeaderboardMaxLimit       int `envconfig:"LEADERBOARD_MAX_LIMIT" default:"50"`
	LeaderboardMaxMembers     int `envconfig:"LEADERBOARD_MAX_MEMBERS" default:"100"`

	// Reconciliation
	ReconcileConcurrency int `envconfig:"RECONCILE_CONCURRENCY" default:"4"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}

	if c.IsProduction() && c.JWTSecret == "change_me" {
		return fmt.Errorf("SUPABASE_JWT_SECRET must be changed in production")
	}

	if c.OpenF1RateLimit <= 0 || c.OpenF1Burst < 1 {
		return fmt.Errorf("OPENF1_RATE_LIMIT and OPENF1_BURST must be positive")
	}

	if c.LeaderboardDefaultLimit < 1 || c.LeaderboardDefaultLimit > c.LeaderboardMaxLimit {
		return fmt.Errorf("LEADERBOARD_DEFAULT_LIMIT must be between 1 and LEADERBOARD_MAX_LIMIT")
	}

	if c.ReconcileConcurrency < 1 {
		return fmt.Errorf("RECONCILE_CONCURRENCY must be at least 1")
	}

	return nil
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// CalendarCacheTTL returns the read-through calendar TTL
func (c *Config) CalendarCacheTTL() time.Duration {
	return time.Duration(c.CacheTTLCalendar) * time.Second
}

// DriversCacheTTL returns the driver list TTL
func (c *Config) DriversCacheTTL() time.Duration {
	return time.Duration(c.CacheTTLDrivers) * time.Second
}

// ResultsCacheTTL returns how long a complete session result is cached
func (c *Config) ResultsCacheTTL() time.Duration {
	return time.Duration(c.CacheTTLResults) * time.Second
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MustLoad loads configuration or exits on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
