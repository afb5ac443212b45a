package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a single auto shop. Every tenant-owned row carries its TenantID.
type Tenant struct {
	TenantID  uuid.UUID // UUIDv7
	Slug      string    // Lowercase, unique, used as the public tenant hint
	Name      string
	CreatedAt time.Time
}

// Role is a principal's role within one tenant.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdvisor  Role = "advisor"
	RoleCustomer Role = "customer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdvisor, RoleCustomer:
		return true
	}
	return false
}

// AllowedFor reports whether a principal of the given kind may hold this role.
// Customers can only ever be customers.
func (r Role) AllowedFor(kind PrincipalKind) bool {
	if kind == PrincipalKindCustomer {
		return r == RoleCustomer
	}
	return r.Valid()
}

// Membership grants a principal a role within a tenant.
type Membership struct {
	PrincipalID uuid.UUID
	TenantID    uuid.UUID
	Role        Role
	CreatedAt   time.Time
}

// TenantContext is the request-scoped result of authentication and tenant
// resolution. It is built once per request and never persisted.
type TenantContext struct {
	TenantID      uuid.UUID
	TenantSlug    string
	PrincipalID   uuid.UUID
	PrincipalKind PrincipalKind
	Role          Role
	SessionID     uuid.UUID
}
