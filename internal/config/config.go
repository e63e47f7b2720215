// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ThresholdOverride is a per-game score threshold supplied via environment.
type ThresholdOverride struct {
	MaxScorePerSecond float64
	MaxTotalScore     float64
}

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Session lifecycle
	GameWhitelist []string      // Known game IDs; startSession fails for anything else
	SweepInterval time.Duration // How often the stale-session sweep runs
	MaxSessionAge time.Duration // Sessions older than this are evicted by the sweep

	// Per-game threshold overrides, keyed by game ID.
	// Set via THRESHOLD_<GAME>=<maxScorePerSecond>:<maxTotalScore>.
	Thresholds map[string]ThresholdOverride

	// Games allowed negative score deltas (sacrifice mechanics).
	NegativeDeltaGames []string

	// Rate limiting
	RateLimitRPM       int // Per-IP requests per minute
	ActionRateLimitRPM int // Per-session action-ingestion requests per minute
}

// Defaults
const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultSweepIntervalSecs  = 300  // 5 minutes
	DefaultMaxSessionAgeSecs  = 1800 // 30 minutes
	DefaultRateLimitRPM       = 300
	DefaultActionRateLimitRPM = 1200 // 20 actions/sec sustained per session
)

// DefaultGameWhitelist is the built-in arcade catalog. Deployments override
// it with GAME_WHITELIST.
var DefaultGameWhitelist = []string{
	"tokencatcher",
	"coinrunner",
	"gemcrush",
	"lanedash",
	"chainwars",
}

// DefaultNegativeDeltaGames lists games whose scoring legitimately goes
// backwards. chainwars is a strategy game with sacrifice mechanics.
var DefaultNegativeDeltaGames = []string{"chainwars"}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		GameWhitelist:      getEnvList("GAME_WHITELIST", DefaultGameWhitelist),
		SweepInterval:      time.Duration(getEnvInt64("SWEEP_INTERVAL_SECS", DefaultSweepIntervalSecs)) * time.Second,
		MaxSessionAge:      time.Duration(getEnvInt64("MAX_SESSION_AGE_SECS", DefaultMaxSessionAgeSecs)) * time.Second,
		Thresholds:         parseThresholdOverrides(os.Environ()),
		NegativeDeltaGames: getEnvList("NEGATIVE_DELTA_GAMES", DefaultNegativeDeltaGames),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		ActionRateLimitRPM: int(getEnvInt64("ACTION_RATE_LIMIT_RPM", DefaultActionRateLimitRPM)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if len(c.GameWhitelist) == 0 {
		return fmt.Errorf("GAME_WHITELIST must contain at least one game id")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECS must be positive")
	}
	if c.MaxSessionAge <= 0 {
		return fmt.Errorf("MAX_SESSION_AGE_SECS must be positive")
	}
	if c.MaxSessionAge < c.SweepInterval {
		return fmt.Errorf("MAX_SESSION_AGE_SECS must be >= SWEEP_INTERVAL_SECS")
	}
	if c.RateLimitRPM <= 0 || c.ActionRateLimitRPM <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// parseThresholdOverrides scans the environment for THRESHOLD_<GAME> entries.
// The value format is "<maxScorePerSecond>:<maxTotalScore>". Malformed
// entries are skipped; a bad override must not take the service down.
func parseThresholdOverrides(environ []string) map[string]ThresholdOverride {
	overrides := make(map[string]ThresholdOverride)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "THRESHOLD_") {
			continue
		}
		game := strings.ToLower(strings.TrimPrefix(name, "THRESHOLD_"))
		if game == "" {
			continue
		}
		rate, total, ok := strings.Cut(value, ":")
		if !ok {
			continue
		}
		rateF, err1 := strconv.ParseFloat(rate, 64)
		totalF, err2 := strconv.ParseFloat(total, 64)
		if err1 != nil || err2 != nil || rateF <= 0 || totalF <= 0 {
			continue
		}
		overrides[game] = ThresholdOverride{
			MaxScorePerSecond: rateF,
			MaxTotalScore:     totalF,
		}
	}
	return overrides
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
