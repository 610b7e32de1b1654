/*
Package config loads server configuration from the environment.

An optional .env file in the working directory is read first; real
environment variables win over it.

VARIABLES:
  PORT                   HTTP port (8080)
  DB_PATH                SQLite path, ":memory:" allowed (loans.db)
  LOG_LEVEL              zerolog level (info)
  ENV                    development | production (development)
  CORS_ORIGINS           Comma-separated origins (http://localhost:5173)
  RATE_LIMIT_PER_MINUTE  Requests per client per minute (120)
  RATE_LIMIT_BURST       Token bucket size (20)
  RECALC_INTERVAL        Holiday re-application period, 0 disables (1h)
  RECALC_WORKERS         Loans recalculated in parallel (4)
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port        int
	DBPath      string
	LogLevel    zerolog.Level
	Env         string
	CORSOrigins []string

	RateLimitPerMinute int
	RateLimitBurst     int

	RecalcInterval time.Duration
	RecalcWorkers  int
}

// IsDevelopment reports whether human-readable console logs are wanted.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		DBPath:      getEnv("DB_PATH", "loans.db"),
		LogLevel:    level,
		Env:         getEnv("ENV", "development"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
	}
	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.RecalcWorkers, err = getInt("RECALC_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.RecalcInterval, err = time.ParseDuration(getEnv("RECALC_INTERVAL", "1h")); err != nil {
		return nil, fmt.Errorf("RECALC_INTERVAL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.RateLimitPerMinute < 1 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be positive")
	}
	if c.RecalcWorkers < 1 {
		return fmt.Errorf("RECALC_WORKERS must be positive, got %d", c.RecalcWorkers)
	}
	if c.RecalcInterval < 0 {
		return fmt.Errorf("RECALC_INTERVAL must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
