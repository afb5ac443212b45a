package models

import (
	"time"

	"github.com/google/uuid"
)

// Appointment is a booked service visit. IDs are sequential per database and
// not secret; row-level security keeps other tenants' rows invisible.
type Appointment struct {
	ID          int64
	TenantID    uuid.UUID
	CustomerID  uuid.UUID
	Vehicle     string
	Service     string
	ScheduledAt time.Time
	Notes       string
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
}
