package commands

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/autoshop/internal/bootstrap"
	"github.com/wolfeidau/autoshop/internal/models"
	memorystore "github.com/wolfeidau/autoshop/internal/store/memory"
)

func TestFindTenant(t *testing.T) {
	ctx := context.Background()
	tenants := memorystore.NewTenantStore()

	shop, _, err := bootstrap.EnsureTenant(ctx, tenants, "main-street", "Main Street Motors")
	require.NoError(t, err)

	bySlug, err := findTenant(ctx, tenants, "main-street")
	require.NoError(t, err)
	require.Equal(t, shop.TenantID, bySlug.TenantID)

	byID, err := findTenant(ctx, tenants, shop.TenantID.String())
	require.NoError(t, err)
	require.Equal(t, "main-street", byID.Slug)

	_, err = findTenant(ctx, tenants, "elsewhere")
	require.EqualError(t, err, `no shop "elsewhere"`)

	_, err = findTenant(ctx, tenants, uuid.NewString())
	require.ErrorContains(t, err, "no shop")
}

func TestFindPrincipal(t *testing.T) {
	ctx := context.Background()
	principals := memorystore.NewPrincipalStore()

	p, _, err := bootstrap.EnsurePrincipal(ctx, principals, bootstrap.PrincipalSpec{
		Kind:       models.PrincipalKindCustomer,
		Email:      "Pat@Example.com",
		Password:   "correct horse battery",
		BcryptCost: 4,
	})
	require.NoError(t, err)

	byEmail, err := findPrincipal(ctx, principals, "pat@example.com")
	require.NoError(t, err)
	require.Equal(t, p.PrincipalID, byEmail.PrincipalID)

	byID, err := findPrincipal(ctx, principals, p.PrincipalID.String())
	require.NoError(t, err)
	require.Equal(t, "pat@example.com", byID.Email)

	_, err = findPrincipal(ctx, principals, "nobody@example.com")
	require.EqualError(t, err, `no principal "nobody@example.com"`)
}
