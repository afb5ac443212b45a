package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// ValidateSlug checks a shop slug is lowercase, URL safe and not a UUID,
// which would be ambiguous as a tenant hint.
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("invalid slug %q: use 3-63 lowercase letters, digits or hyphens", slug)
	}
	if _, err := uuid.Parse(slug); err == nil {
		return fmt.Errorf("invalid slug %q: must not be a UUID", slug)
	}
	return nil
}

// EnsureTenant creates the shop unless one with the slug exists, in which
// case that shop is returned.
func EnsureTenant(ctx context.Context, tenants store.TenantStore, slug, name string) (*models.Tenant, bool, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if err := ValidateSlug(slug); err != nil {
		return nil, false, err
	}

	existing, err := tenants.GetBySlug(ctx, slug)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrTenantNotFound) {
		return nil, false, err
	}

	tenantID, err := uuid.NewV7()
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate tenant ID: %w", err)
	}

	tenant := &models.Tenant{
		TenantID:  tenantID,
		Slug:      slug,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := tenants.Create(ctx, tenant); err != nil {
		return nil, false, err
	}

	return tenant, true, nil
}
