package models

import (
	"time"

	"github.com/google/uuid"
)

// PrincipalKind distinguishes shop staff from the shop's customers.
type PrincipalKind string

const (
	PrincipalKindStaff    PrincipalKind = "staff"    // Owners and service advisors
	PrincipalKindCustomer PrincipalKind = "customer" // Vehicle owners booking appointments
)

// Valid reports whether k is a known principal kind.
func (k PrincipalKind) Valid() bool {
	return k == PrincipalKindStaff || k == PrincipalKindCustomer
}

// Principal represents an identity that can log in.
// Principals are global; access to a tenant is granted through a Membership.
type Principal struct {
	PrincipalID  uuid.UUID // UUIDv7
	Kind         PrincipalKind
	Email        string // Lowercased, unique
	Name         string // Display name
	PasswordHash []byte // bcrypt

	CreatedAt  time.Time
	UpdatedAt  time.Time
	DisabledAt *time.Time
}

// IsDisabled returns true if the principal has been disabled.
func (p *Principal) IsDisabled() bool {
	return p.DisabledAt != nil
}
