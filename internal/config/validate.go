package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secret
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be between 1 and 65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be between 1 and 65535, got %d", c.Redis.Port))
	}

	// Upstreams: warn only, the admission layer still works without them
	if c.Upstream.GeminiURL == "" && c.Upstream.GroqURL == "" {
		slog.Warn("no upstream AI provider URLs configured, AI routes will be unavailable")
	}

	if c.RateLimit.Enabled && c.RateLimit.MaxReqs < 1 {
		errs = append(errs, fmt.Sprintf("RATELIMIT_MAX_REQS must be positive, got %d", c.RateLimit.MaxReqs))
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
