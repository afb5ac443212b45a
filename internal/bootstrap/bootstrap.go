// Package bootstrap seeds shops, principals and memberships for the admin
// CLI and development servers.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

// Bootstrap creates a shop, its owner and the owner membership.
// Existing records are reused so running it twice is safe.
func Bootstrap(ctx context.Context, cfg Config) (*Resources, error) {
	// Validate config
	if cfg.Tenants == nil || cfg.Principals == nil || cfg.Memberships == nil {
		return nil, fmt.Errorf("tenant, principal and membership stores are required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Slug
	}

	resources := &Resources{}

	tenant, created, err := EnsureTenant(ctx, cfg.Tenants, cfg.Slug, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	resources.Tenant = tenant
	resources.Created.Tenant = created

	owner, created, err := EnsurePrincipal(ctx, cfg.Principals, PrincipalSpec{
		Kind:       models.PrincipalKindStaff,
		Email:      cfg.OwnerEmail,
		Name:       cfg.OwnerName,
		Password:   cfg.OwnerPassword,
		BcryptCost: cfg.BcryptCost,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create owner: %w", err)
	}
	resources.Owner = owner
	resources.Created.Owner = created

	if err := Grant(ctx, cfg.Memberships, tenant.TenantID, owner, models.RoleOwner); err != nil {
		return nil, fmt.Errorf("failed to grant owner role: %w", err)
	}

	return resources, nil
}

// Grant gives principal role in the tenant, replacing any existing role.
func Grant(ctx context.Context, memberships store.MembershipStore, tenantID uuid.UUID, principal *models.Principal, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	if !role.AllowedFor(principal.Kind) {
		return fmt.Errorf("%s principals cannot hold role %s", principal.Kind, role)
	}

	existing, err := memberships.Get(ctx, tenantID, principal.PrincipalID)
	switch {
	case err == nil && existing.Role == role:
		return nil
	case err != nil && !errors.Is(err, store.ErrMembershipNotFound):
		return err
	}

	return memberships.Put(ctx, &models.Membership{
		TenantID:    tenantID,
		PrincipalID: principal.PrincipalID,
		Role:        role,
		CreatedAt:   time.Now(),
	})
}
