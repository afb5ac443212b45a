package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/autoshop/internal/models"
)

// Sentinel errors for principal store operations
var (
	ErrPrincipalNotFound      = errors.New("principal not found")
	ErrPrincipalAlreadyExists = errors.New("principal already exists")
)

// PrincipalStore manages login identities.
type PrincipalStore interface {
	// Create creates a new principal. Email must be unique (case-insensitive).
	// Returns ErrPrincipalAlreadyExists on conflict.
	Create(ctx context.Context, principal *models.Principal) error

	// Get retrieves a principal by ID.
	// Returns ErrPrincipalNotFound if the principal doesn't exist.
	Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error)

	// GetByEmail retrieves a principal by email address.
	// Returns ErrPrincipalNotFound if no principal has that email.
	GetByEmail(ctx context.Context, email string) (*models.Principal, error)

	// UpdatePassword replaces the principal's password hash.
	// Returns ErrPrincipalNotFound if the principal doesn't exist.
	UpdatePassword(ctx context.Context, principalID uuid.UUID, passwordHash []byte) error
}
