package tenant

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
	"github.com/wolfeidau/autoshop/internal/store/memory"
)

type countingTenants struct {
	store.TenantStore
	calls atomic.Int32
}

func (c *countingTenants) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	c.calls.Add(1)
	return c.TenantStore.GetBySlug(ctx, slug)
}

type slowMemberships struct {
	store.MembershipStore
}

func (slowMemberships) Get(ctx context.Context, tenantID, principalID uuid.UUID) (*models.Membership, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fixture struct {
	tenants     *countingTenants
	memberships *memory.MembershipStore
	shopA       *models.Tenant
	shopB       *models.Tenant
	advisor     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	tenants := memory.NewTenantStore()
	memberships := memory.NewMembershipStore()

	shopA := &models.Tenant{TenantID: uuid.Must(uuid.NewV7()), Slug: "shop-a", Name: "Shop A", CreatedAt: time.Now()}
	shopB := &models.Tenant{TenantID: uuid.Must(uuid.NewV7()), Slug: "shop-b", Name: "Shop B", CreatedAt: time.Now()}
	require.NoError(t, tenants.Create(ctx, shopA))
	require.NoError(t, tenants.Create(ctx, shopB))

	advisor := uuid.Must(uuid.NewV7())
	require.NoError(t, memberships.Put(ctx, &models.Membership{
		TenantID:    shopA.TenantID,
		PrincipalID: advisor,
		Role:        models.RoleAdvisor,
	}))

	return &fixture{
		tenants:     &countingTenants{TenantStore: tenants},
		memberships: memberships,
		shopA:       shopA,
		shopB:       shopB,
		advisor:     advisor,
	}
}

func TestResolve_member(t *testing.T) {
	f := newFixture(t)
	r, err := NewResolver(f.tenants, f.memberships, Config{})
	require.NoError(t, err)

	res, err := r.Resolve(context.Background(), Request{PrincipalID: f.advisor, Hint: "Shop-A"})
	require.NoError(t, err)
	require.Equal(t, f.shopA.TenantID, res.Tenant.TenantID)
	require.Equal(t, models.RoleAdvisor, res.Role)

	res, err = r.Resolve(context.Background(), Request{PrincipalID: f.advisor, Hint: f.shopA.TenantID.String()})
	require.NoError(t, err)
	require.Equal(t, "shop-a", res.Tenant.Slug)
}

func TestResolve_notAMember(t *testing.T) {
	f := newFixture(t)
	r, err := NewResolver(f.tenants, f.memberships, Config{})
	require.NoError(t, err)

	tests := []struct {
		name string
		hint string
	}{
		{name: "other tenant", hint: "shop-b"},
		{name: "unknown slug", hint: "no-such-shop"},
		{name: "unknown id", hint: uuid.NewString()},
		{name: "empty hint", hint: "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), Request{PrincipalID: f.advisor, Hint: tt.hint})
			require.ErrorIs(t, err, autherr.ErrNotAMember)
			require.Equal(t, 403, autherr.KindOf(err).HTTPStatus())
		})
	}
}

func TestResolve_ignoresRoleHint(t *testing.T) {
	f := newFixture(t)
	r, err := NewResolver(f.tenants, f.memberships, Config{})
	require.NoError(t, err)

	res, err := r.Resolve(context.Background(), Request{PrincipalID: f.advisor, Hint: "shop-a", RoleHint: models.RoleOwner})
	require.NoError(t, err)
	require.Equal(t, models.RoleAdvisor, res.Role)
}

func TestResolve_membershipRemovalTakesEffectImmediately(t *testing.T) {
	f := newFixture(t)
	r, err := NewResolver(f.tenants, f.memberships, Config{CacheTTL: time.Minute})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = r.Resolve(ctx, Request{PrincipalID: f.advisor, Hint: "shop-a"})
	require.NoError(t, err)

	// Keep the tenant a valid owner so the advisor can be removed.
	owner := uuid.Must(uuid.NewV7())
	require.NoError(t, f.memberships.Put(ctx, &models.Membership{TenantID: f.shopA.TenantID, PrincipalID: owner, Role: models.RoleOwner}))
	require.NoError(t, f.memberships.Delete(ctx, f.shopA.TenantID, f.advisor))

	_, err = r.Resolve(ctx, Request{PrincipalID: f.advisor, Hint: "shop-a"})
	require.ErrorIs(t, err, autherr.ErrNotAMember)
}

func TestResolve_cachesTenantHint(t *testing.T) {
	f := newFixture(t)
	r, err := NewResolver(f.tenants, f.memberships, Config{CacheTTL: time.Minute})
	require.NoError(t, err)

	for range 5 {
		_, err := r.Resolve(context.Background(), Request{PrincipalID: f.advisor, Hint: "shop-a"})
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), f.tenants.calls.Load())

	// Misses are not cached.
	for range 2 {
		_, err := r.Resolve(context.Background(), Request{PrincipalID: f.advisor, Hint: "shop-z"})
		require.Error(t, err)
	}
	require.Equal(t, int32(3), f.tenants.calls.Load())
}

func TestResolve_timeoutIsUnavailable(t *testing.T) {
	f := newFixture(t)
	r, err := NewResolver(f.tenants, slowMemberships{}, Config{LookupTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = r.Resolve(context.Background(), Request{PrincipalID: f.advisor, Hint: "shop-a"})
	require.Less(t, time.Since(start), time.Second)

	kind := autherr.KindOf(err)
	require.Equal(t, autherr.KindUnavailable, kind)
	require.Equal(t, 503, kind.HTTPStatus())
	require.True(t, kind.Retryable())
}

func TestConfig_bypassRejectedOutsideTest(t *testing.T) {
	f := newFixture(t)

	_, err := NewResolver(f.tenants, f.memberships, Config{Bypass: true, Environment: "production"})
	require.Error(t, err)
}
