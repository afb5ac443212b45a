package bootstrap

import (
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

// Config holds configuration for seeding a shop and its first owner
type Config struct {
	// Stores to seed
	Tenants     store.TenantStore
	Principals  store.PrincipalStore
	Memberships store.MembershipStore

	// Shop to create, reused when the slug already exists
	Slug string
	Name string

	// Owner to create, reused when the email already exists. The password is
	// only used for a new principal.
	OwnerEmail    string
	OwnerName     string
	OwnerPassword string

	// BcryptCost is the work factor for the owner's password hash.
	// Default: bcrypt.DefaultCost
	BcryptCost int
}

// Resources holds what Bootstrap created or found
type Resources struct {
	Tenant *models.Tenant
	Owner  *models.Principal

	// Created reports which records were new rather than reused
	Created struct {
		Tenant bool
		Owner  bool
	}
}
