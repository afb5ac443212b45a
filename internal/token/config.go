package token

import (
	"errors"
	"fmt"
	"time"
)

const (
	MaxAccessTTL  = 15 * time.Minute
	MinRefreshTTL = 7 * 24 * time.Hour
	MaxRefreshTTL = 30 * 24 * time.Hour
	DefaultLeeway = 5 * time.Second
)

// Config holds token issuance settings.
type Config struct {
	// Issuer is written to "iss" and required on verification.
	Issuer string

	// Audience is written to "aud" and required on verification.
	Audience string

	// AccessTTL is the access token lifetime.
	// Default: 10 minutes, maximum 15 minutes
	AccessTTL time.Duration

	// RefreshTTL is the refresh token and session lifetime.
	// Default: 14 days, between 7 and 30 days
	RefreshTTL time.Duration

	// Leeway is the clock skew tolerated on exp, nbf and iat.
	// Default: 5 seconds
	Leeway time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.AccessTTL == 0 {
		c.AccessTTL = 10 * time.Minute
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = 14 * 24 * time.Hour
	}
	if c.Leeway == 0 {
		c.Leeway = DefaultLeeway
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("token issuer is required")
	}
	if c.Audience == "" {
		return errors.New("token audience is required")
	}
	if c.AccessTTL <= 0 || c.AccessTTL > MaxAccessTTL {
		return fmt.Errorf("access token TTL must be between 0 and %s, got %s", MaxAccessTTL, c.AccessTTL)
	}
	if c.RefreshTTL < MinRefreshTTL || c.RefreshTTL > MaxRefreshTTL {
		return fmt.Errorf("refresh token TTL must be between %s and %s, got %s", MinRefreshTTL, MaxRefreshTTL, c.RefreshTTL)
	}
	if c.Leeway < 0 || c.Leeway > time.Minute {
		return fmt.Errorf("token leeway must be between 0 and 1m, got %s", c.Leeway)
	}
	return nil
}
