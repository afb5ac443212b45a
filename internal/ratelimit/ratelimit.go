// Package ratelimit provides fixed-window request limiters for the
// authentication endpoints, backed by process memory or Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config describes one limit.
type Config struct {
	// Requests is the number of requests allowed per window.
	Requests int

	// Window is the length of a counting window.
	Window time.Duration
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Requests <= 0 {
		return errors.New("rate limit requests must be positive")
	}
	if c.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	return nil
}

// LoginConfig is the default per-key limit for login attempts.
func LoginConfig() Config {
	return Config{Requests: 10, Window: time.Minute}
}

// RefreshConfig is the default per-key limit for token refreshes.
func RefreshConfig() Config {
	return Config{Requests: 60, Window: time.Minute}
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int

	// ResetAfter is the time until the current window ends.
	ResetAfter time.Duration
}

// Limiter counts requests per key.
type Limiter interface {
	// Allow records a request for key. On backend errors it returns an
	// allowing Result together with the error.
	Allow(ctx context.Context, key string) (Result, error)
}

func newResult(cfg Config, count int64, resetAfter time.Duration) Result {
	remaining := cfg.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if resetAfter <= 0 {
		resetAfter = cfg.Window
	}
	return Result{
		Allowed:    count <= int64(cfg.Requests),
		Limit:      cfg.Requests,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}
}

func failOpen(cfg Config, err error) (Result, error) {
	return Result{Allowed: true, Limit: cfg.Requests, Remaining: cfg.Requests, ResetAfter: cfg.Window},
		fmt.Errorf("rate limiter unavailable: %w", err)
}
