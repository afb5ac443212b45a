//go:build authbypass

package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/models"
)

func TestResolve_bypassTrustsRoleHint(t *testing.T) {
	f := newFixture(t)
	r, err := NewResolver(f.tenants, f.memberships, Config{Bypass: true, Environment: "test"})
	require.NoError(t, err)

	stranger := uuid.Must(uuid.NewV7())
	res, err := r.Resolve(context.Background(), Request{PrincipalID: stranger, Hint: "shop-b", RoleHint: models.RoleOwner, TokenTenant: f.shopB.TenantID})
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, res.Role)

	// Tenant existence is still checked.
	_, err = r.Resolve(context.Background(), Request{PrincipalID: stranger, Hint: "nowhere", RoleHint: models.RoleOwner, TokenTenant: f.shopB.TenantID})
	require.ErrorIs(t, err, autherr.ErrNotAMember)
}

func TestResolve_bypassRejectsOtherTenant(t *testing.T) {
	f := newFixture(t)
	r, err := NewResolver(f.tenants, f.memberships, Config{Bypass: true, Environment: "test"})
	require.NoError(t, err)

	stranger := uuid.Must(uuid.NewV7())

	// The token was issued for shop-a; the header names shop-b.
	_, err = r.Resolve(context.Background(), Request{PrincipalID: stranger, Hint: "shop-b", RoleHint: models.RoleOwner, TokenTenant: f.shopA.TenantID})
	require.ErrorIs(t, err, autherr.ErrNotAMember)

	// A token without a tenant never qualifies.
	_, err = r.Resolve(context.Background(), Request{PrincipalID: stranger, Hint: "shop-b", RoleHint: models.RoleOwner})
	require.ErrorIs(t, err, autherr.ErrNotAMember)
}
