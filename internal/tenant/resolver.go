// Package tenant resolves the tenant a request acts in and verifies the
// caller's membership of it.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
	"github.com/wolfeidau/autoshop/internal/telemetry"
)

const (
	DefaultCacheSize     = 1024
	DefaultCacheTTL      = 5 * time.Second
	DefaultLookupTimeout = 500 * time.Millisecond
)

// Config configures a Resolver.
type Config struct {
	// CacheSize bounds the number of tenant hints cached.
	CacheSize int

	// CacheTTL is how long a hint to tenant mapping is reused. Memberships
	// are never cached.
	CacheTTL time.Duration

	// LookupTimeout bounds each storage call.
	LookupTimeout time.Duration

	// Environment is the deployment environment name.
	Environment string

	// Bypass skips the membership lookup and trusts the token's role hint.
	// Only honoured in binaries built with the authbypass tag and only when
	// Environment is "test".
	Bypass bool
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = DefaultLookupTimeout
	}
}

// Validate rejects a bypass that is not compiled in or not in a test environment.
func (c *Config) Validate() error {
	if !c.Bypass {
		return nil
	}
	if !bypassCompiled {
		return errors.New("membership bypass requested but binary was built without the authbypass tag")
	}
	if c.Environment != "test" {
		return fmt.Errorf("membership bypass is only permitted in the test environment, not %q", c.Environment)
	}
	return nil
}

// Request identifies who is asking for which tenant.
type Request struct {
	PrincipalID uuid.UUID

	// Hint is a tenant slug or id from the X-Tenant header or the token.
	Hint string

	// RoleHint is the role carried in the access token. Only the test
	// bypass reads it.
	RoleHint models.Role

	// TokenTenant is the tenant the access token was issued for. The test
	// bypass only trusts RoleHint for this tenant.
	TokenTenant uuid.UUID
}

// Resolution is the verified tenant and the caller's role in it.
type Resolution struct {
	Tenant *models.Tenant
	Role   models.Role
}

// Resolver maps a tenant hint and principal to a verified membership.
type Resolver struct {
	tenants     store.TenantStore
	memberships store.MembershipStore
	cache       *expirable.LRU[string, *models.Tenant]
	timeout     time.Duration
	bypass      bool
}

// NewResolver creates a resolver. It returns an error when cfg asks for a
// bypass the build or environment does not allow.
func NewResolver(tenants store.TenantStore, memberships store.MembershipStore, cfg Config) (*Resolver, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Resolver{
		tenants:     tenants,
		memberships: memberships,
		cache:       expirable.NewLRU[string, *models.Tenant](cfg.CacheSize, nil, cfg.CacheTTL),
		timeout:     cfg.LookupTimeout,
		bypass:      cfg.Bypass,
	}, nil
}

// Resolve returns the canonical tenant and the principal's role in it.
// An unknown tenant and a missing membership both yield an error of kind
// NotAMember so callers cannot probe which tenants exist. Storage failures
// and timeouts yield Unavailable.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	m := telemetry.GetMetrics()

	res, err := r.resolve(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = autherr.KindOf(err).String()
	}
	m.TenantResolutionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	return res, err
}

func (r *Resolver) resolve(ctx context.Context, req Request) (*Resolution, error) {
	hint := normalizeHint(req.Hint)
	if hint == "" {
		return nil, fmt.Errorf("%w: no tenant hint", autherr.ErrNotAMember)
	}

	tenant, err := r.lookupTenant(ctx, hint)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			r.deny(ctx, req, hint, "unknown tenant")
			return nil, fmt.Errorf("%w: unknown tenant", autherr.ErrNotAMember)
		}
		return nil, lookupError("tenant", err)
	}

	if r.bypass {
		if !req.RoleHint.Valid() {
			return nil, fmt.Errorf("%w: bypass without role hint", autherr.ErrNotAMember)
		}
		if req.TokenTenant != tenant.TenantID {
			r.deny(ctx, req, hint, "bypass tenant differs from token")
			return nil, fmt.Errorf("%w: role hint was issued for another tenant", autherr.ErrNotAMember)
		}
		zerolog.Ctx(ctx).Warn().
			Str("tenant_id", tenant.TenantID.String()).
			Str("principal_id", req.PrincipalID.String()).
			Msg("membership check bypassed")
		return &Resolution{Tenant: tenant, Role: req.RoleHint}, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	membership, err := r.memberships.Get(lookupCtx, tenant.TenantID, req.PrincipalID)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			r.deny(ctx, req, hint, "no membership")
			return nil, fmt.Errorf("%w: no membership", autherr.ErrNotAMember)
		}
		return nil, lookupError("membership", err)
	}

	return &Resolution{Tenant: tenant, Role: membership.Role}, nil
}

func (r *Resolver) lookupTenant(ctx context.Context, hint string) (*models.Tenant, error) {
	m := telemetry.GetMetrics()

	if tenant, ok := r.cache.Get(hint); ok {
		m.TenantCacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "hit")))
		return tenant, nil
	}
	m.TenantCacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "miss")))

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		tenant *models.Tenant
		err    error
	)
	if id, parseErr := uuid.Parse(hint); parseErr == nil {
		tenant, err = r.tenants.Get(lookupCtx, id)
	} else {
		tenant, err = r.tenants.GetBySlug(lookupCtx, hint)
	}
	if err != nil {
		return nil, err
	}

	r.cache.Add(hint, tenant)
	return tenant, nil
}

func (r *Resolver) deny(ctx context.Context, req Request, hint, reason string) {
	zerolog.Ctx(ctx).Warn().
		Str("event", "membership_denied").
		Str("principal_id", req.PrincipalID.String()).
		Str("tenant_hint", hint).
		Str("reason", reason).
		Msg("tenant membership denied")
}

// lookupError reports timeouts and store outages as Unavailable and leaves
// anything else as an internal error.
func lookupError(what string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, autherr.ErrUnavailable) {
		return fmt.Errorf("%w: %s lookup: %v", store.ErrUnavailable, what, err)
	}
	return fmt.Errorf("%s lookup: %w", what, err)
}

// normalizeHint accepts slugs case-insensitively. Ids are canonicalised so
// that one tenant occupies one cache entry per spelling at most.
func normalizeHint(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if id, err := uuid.Parse(hint); err == nil {
		return id.String()
	}
	return hint
}
