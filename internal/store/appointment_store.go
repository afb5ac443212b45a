package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/autoshop/internal/models"
)

// ErrAppointmentNotFound is also returned for appointments of other tenants.
var ErrAppointmentNotFound = errors.New("appointment not found")

// AppointmentStore is the reference tenant-scoped repository. Every method
// reads the tenant from the context bound by the request pipeline and fails
// closed when none is present.
type AppointmentStore interface {
	// Create inserts an appointment into the bound tenant and sets its ID.
	Create(ctx context.Context, appt *models.Appointment) error

	// Get retrieves an appointment of the bound tenant.
	Get(ctx context.Context, id int64) (*models.Appointment, error)

	// List returns appointments of the bound tenant, newest first.
	// A non-nil customerID limits results to that customer.
	List(ctx context.Context, customerID *uuid.UUID) ([]*models.Appointment, error)
}
