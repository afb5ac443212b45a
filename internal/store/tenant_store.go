package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/models"
)

// Sentinel errors for tenant and membership store operations
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrMembershipNotFound  = errors.New("membership not found")
	ErrLastOwner           = fmt.Errorf("tenant must keep at least one owner: %w", autherr.ErrConflict)
)

// TenantStore manages shops.
type TenantStore interface {
	// Create creates a new tenant.
	// Returns ErrTenantAlreadyExists if the ID or slug is taken.
	Create(ctx context.Context, tenant *models.Tenant) error

	// Get retrieves a tenant by ID.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)

	// GetBySlug retrieves a tenant by its slug.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
}

// MembershipStore manages principal roles within tenants.
// Lookups are never cached; a removed membership takes effect on the next request.
type MembershipStore interface {
	// Get retrieves the membership of a principal in a tenant.
	// Returns ErrMembershipNotFound if the principal is not a member.
	Get(ctx context.Context, tenantID, principalID uuid.UUID) (*models.Membership, error)

	// Put grants a membership or changes its role.
	// Returns ErrLastOwner if the change would leave the tenant without an owner.
	Put(ctx context.Context, membership *models.Membership) error

	// Delete removes a membership.
	// Returns ErrMembershipNotFound if it doesn't exist, ErrLastOwner if
	// it is the tenant's only owner.
	Delete(ctx context.Context, tenantID, principalID uuid.UUID) error

	// ListByTenant returns all memberships of a tenant ordered by creation.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Membership, error)
}
