// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	FrontendURL  string
	FormsDir     string
	Store        StoreConfig
	SessionTTL   time.Duration
	HTTPTimeout  time.Duration
	Engine       EngineConfig
	Turnstile    string // Server-side secret; empty disables provider verification
	RateLimit    RateLimitConfig
	ContactEmail string
}

// StoreConfig selects and configures session persistence.
type StoreConfig struct {
	Driver        string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// EngineConfig holds the stage engine and attachment knobs.
type EngineConfig struct {
	AutoAdvanceDelay  time.Duration
	GateInputOnReveal bool
	DefaultCountry    string
	SafetyCapBytes    int64
	SimulateDelay     time.Duration
}

// RateLimitConfig bounds submit and duplicate-check traffic per visitor.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	capMB := getEnvInt("ATTACHMENT_SAFETY_CAP_MB", 5)
	if capMB <= 0 {
		capMB = 5
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		FormsDir:    getEnv("FORMS_DIR", "./forms"),
		Store: StoreConfig{
			Driver:        strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
			DBPath:        getEnv("DB_PATH", "./data/intake.db"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		SessionTTL:  getEnvDuration("SESSION_TTL", 2*time.Hour),
		HTTPTimeout: getEnvDuration("HTTP_CLIENT_TIMEOUT", 30*time.Second),
		Engine: EngineConfig{
			AutoAdvanceDelay:  getEnvDuration("AUTO_ADVANCE_DELAY", 250*time.Millisecond),
			GateInputOnReveal: getEnvBool("GATE_INPUT_ON_REVEAL", false),
			DefaultCountry:    strings.ToUpper(getEnv("DEFAULT_PHONE_COUNTRY", "ZA")),
			SafetyCapBytes:    int64(capMB) << 20,
			SimulateDelay:     getEnvDuration("SIMULATE_DELAY", 1500*time.Millisecond),
		},
		Turnstile: getEnv("TURNSTILE_SECRET", ""),
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ContactEmail: getEnv("CONTACT_EMAIL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.FormsDir == "" {
		return fmt.Errorf("FORMS_DIR cannot be empty")
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty for the sqlite store")
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty for the redis store")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of memory, sqlite, redis; got %q", c.Store.Driver)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Engine.AutoAdvanceDelay < 0 {
		return fmt.Errorf("AUTO_ADVANCE_DELAY cannot be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("250ms") or bare milliseconds ("250").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
