// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/deployview/deployview/pkg/filetree"
)

// Config holds client configuration. Command-line flags override it.
type Config struct {
	// API
	APIURL  string
	Token   string
	TeamID  string
	Timeout time.Duration

	// Listing cache (empty dir disables it)
	CacheDir     string
	CacheEntries int

	// Tree addressing
	MatchPolicy filetree.MatchPolicy

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	policy, err := filetree.ParseMatchPolicy(os.Getenv("DEPLOYVIEW_MATCH_POLICY"))
	if err != nil {
		return nil, fmt.Errorf("DEPLOYVIEW_MATCH_POLICY: %w", err)
	}

	cfg := &Config{
		APIURL:       envOr("DEPLOYVIEW_API_URL", "https://api.vercel.com"),
		Token:        envOr("DEPLOYVIEW_TOKEN", ""),
		TeamID:       envOr("DEPLOYVIEW_TEAM_ID", ""),
		Timeout:      envDuration("DEPLOYVIEW_TIMEOUT", 30*time.Second),
		CacheDir:     envOr("DEPLOYVIEW_CACHE_DIR", defaultCacheDir()),
		CacheEntries: envInt("DEPLOYVIEW_CACHE_ENTRIES", 2048),
		MatchPolicy:  policy,
		LogLevel:     envOr("LOG_LEVEL", "warn"),
		LogFormat:    envOr("LOG_FORMAT", "console"),
	}

	if cfg.CacheEntries < 0 {
		return nil, fmt.Errorf("DEPLOYVIEW_CACHE_ENTRIES must be >= 0")
	}

	return cfg, nil
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "deployview", "listings")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
