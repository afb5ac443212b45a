// Package store defines the persistence interfaces for identity, tenancy and
// sessions. Implementations live in the memory and postgres subpackages.
package store

import (
	"errors"
	"fmt"

	"github.com/wolfeidau/autoshop/internal/autherr"
)

// ErrUnavailable is returned when the backing store cannot be reached or a
// bounded lookup timed out. It is retryable.
var ErrUnavailable = fmt.Errorf("store unavailable: %w", autherr.ErrUnavailable)

// IsNotFound reports whether err is any of the store's not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrPrincipalNotFound) ||
		errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrMembershipNotFound) ||
		errors.Is(err, ErrAppointmentNotFound)
}
