package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfeidau/autoshop/internal/authn"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

// PrincipalSpec describes a principal to create.
type PrincipalSpec struct {
	Kind       models.PrincipalKind
	Email      string
	Name       string
	Password   string
	BcryptCost int
}

// EnsurePrincipal creates the principal unless one with the email exists,
// in which case that principal is returned unchanged.
func EnsurePrincipal(ctx context.Context, principals store.PrincipalStore, spec PrincipalSpec) (*models.Principal, bool, error) {
	email := strings.ToLower(strings.TrimSpace(spec.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, false, fmt.Errorf("invalid email %q", spec.Email)
	}
	if !spec.Kind.Valid() {
		return nil, false, fmt.Errorf("unknown principal kind %q", spec.Kind)
	}

	existing, err := principals.GetByEmail(ctx, email)
	if err == nil {
		if existing.Kind != spec.Kind {
			return nil, false, fmt.Errorf("%s is already a %s principal", email, existing.Kind)
		}
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrPrincipalNotFound) {
		return nil, false, err
	}

	cost := spec.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := authn.HashPassword(spec.Password, cost)
	if err != nil {
		return nil, false, err
	}

	principalID, err := uuid.NewV7()
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate principal ID: %w", err)
	}

	now := time.Now()
	principal := &models.Principal{
		PrincipalID:  principalID,
		Kind:         spec.Kind,
		Email:        email,
		Name:         spec.Name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := principals.Create(ctx, principal); err != nil {
		return nil, false, err
	}

	return principal, true, nil
}
