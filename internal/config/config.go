// Package config loads service configuration from environment variables.
// The config is read once at startup and treated as immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of the API process.
type Config struct {
	// Server
	ListenAddr string
	Timezone   string

	// Database
	DatabaseDSN string

	// Auth
	TokenSecret string
	Issuer      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	SessionTTL  time.Duration

	// Pagination
	DefaultPerPage int
	MaxPerPage     int

	// Cache
	SettingCacheTTL time.Duration
	APIKeyCacheTTL  time.Duration

	// Rate limit
	RateLimitPerSecond int
	RateLimitBurst     int

	// Request body
	MaxBodyBytes int64
}

// Load reads the configuration from the environment. Missing required
// variables are reported together in a single error.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         envOr("GATEWISE_LISTEN_ADDR", ":8080"),
		Timezone:           envOr("GATEWISE_TZ", "UTC"),
		Issuer:             envOr("GATEWISE_ISSUER", "gatewise"),
		AccessTTL:          envDuration("GATEWISE_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:         envDuration("GATEWISE_REFRESH_TTL", 14*24*time.Hour),
		SessionTTL:         envDuration("GATEWISE_SESSION_TTL", 30*24*time.Hour),
		DefaultPerPage:     envInt("GATEWISE_DEFAULT_PER_PAGE", 20),
		MaxPerPage:         envInt("GATEWISE_MAX_PER_PAGE", 100),
		SettingCacheTTL:    envDuration("GATEWISE_SETTING_CACHE_TTL", time.Minute),
		APIKeyCacheTTL:     envDuration("GATEWISE_APIKEY_CACHE_TTL", time.Minute),
		RateLimitPerSecond: envInt("GATEWISE_RATE_PER_SECOND", 20),
		RateLimitBurst:     envInt("GATEWISE_RATE_BURST", 40),
		MaxBodyBytes:       int64(envInt("GATEWISE_MAX_BODY_BYTES", 1<<20)),
	}

	var missing []string

	cfg.DatabaseDSN = os.Getenv("GATEWISE_PG_DSN")
	if cfg.DatabaseDSN == "" {
		missing = append(missing, "GATEWISE_PG_DSN")
	}
	cfg.TokenSecret = strings.TrimSpace(os.Getenv("GATEWISE_AUTH_SECRET"))
	if cfg.TokenSecret == "" {
		missing = append(missing, "GATEWISE_AUTH_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if cfg.DefaultPerPage < 1 || cfg.MaxPerPage < cfg.DefaultPerPage {
		return nil, fmt.Errorf("invalid pagination bounds: default=%d max=%d", cfg.DefaultPerPage, cfg.MaxPerPage)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
