package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store/memory"
)

func newConfig() Config {
	return Config{
		Tenants:       memory.NewTenantStore(),
		Principals:    memory.NewPrincipalStore(),
		Memberships:   memory.NewMembershipStore(),
		Slug:          "joes-garage",
		Name:          "Joe's Garage",
		OwnerEmail:    "Joe@Example.com",
		OwnerName:     "Joe",
		OwnerPassword: "correct horse battery",
		BcryptCost:    bcrypt.MinCost,
	}
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig()

	res, err := Bootstrap(ctx, cfg)
	require.NoError(t, err)
	require.True(t, res.Created.Tenant)
	require.True(t, res.Created.Owner)
	require.Equal(t, "joes-garage", res.Tenant.Slug)
	require.Equal(t, "joe@example.com", res.Owner.Email)
	require.NoError(t, bcrypt.CompareHashAndPassword(res.Owner.PasswordHash, []byte("correct horse battery")))

	m, err := cfg.Memberships.Get(ctx, res.Tenant.TenantID, res.Owner.PrincipalID)
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, m.Role)

	// Running again reuses everything.
	again, err := Bootstrap(ctx, cfg)
	require.NoError(t, err)
	require.False(t, again.Created.Tenant)
	require.False(t, again.Created.Owner)
	require.Equal(t, res.Tenant.TenantID, again.Tenant.TenantID)
	require.Equal(t, res.Owner.PrincipalID, again.Owner.PrincipalID)
}

func TestBootstrap_invalid(t *testing.T) {
	ctx := context.Background()

	cfg := newConfig()
	cfg.Slug = "Not A Slug!"
	_, err := Bootstrap(ctx, cfg)
	require.Error(t, err)

	cfg = newConfig()
	cfg.OwnerPassword = "short"
	_, err = Bootstrap(ctx, cfg)
	require.Error(t, err)

	_, err = Bootstrap(ctx, Config{})
	require.Error(t, err)
}

func TestValidateSlug(t *testing.T) {
	for _, slug := range []string{"ab1", "joes-garage", "shop-42"} {
		require.NoError(t, ValidateSlug(slug), slug)
	}
	for _, slug := range []string{"", "ab", "-shop", "shop-", "Shop", "shop_a", "0190b5e2-7c1a-7d3e-9f00-000000000001"} {
		require.Error(t, ValidateSlug(slug), slug)
	}
}

func TestGrant(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig()
	res, err := Bootstrap(ctx, cfg)
	require.NoError(t, err)

	customer, created, err := EnsurePrincipal(ctx, cfg.Principals, PrincipalSpec{
		Kind:       models.PrincipalKindCustomer,
		Email:      "pat@example.com",
		Password:   "another long password",
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	require.True(t, created)

	require.Error(t, Grant(ctx, cfg.Memberships, res.Tenant.TenantID, customer, models.RoleAdvisor))
	require.NoError(t, Grant(ctx, cfg.Memberships, res.Tenant.TenantID, customer, models.RoleCustomer))
	require.NoError(t, Grant(ctx, cfg.Memberships, res.Tenant.TenantID, customer, models.RoleCustomer))

	// Same email, different kind.
	_, _, err = EnsurePrincipal(ctx, cfg.Principals, PrincipalSpec{
		Kind:     models.PrincipalKindStaff,
		Email:    "pat@example.com",
		Password: "another long password",
	})
	require.Error(t, err)
}
