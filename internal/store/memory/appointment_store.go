package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/autoshop/internal/gateway"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

// AppointmentStore implements store.AppointmentStore using in-memory storage.
// It applies the same tenant filter the database policy does, including
// failing closed when no tenant is bound.
type AppointmentStore struct {
	mu sync.RWMutex

	nextID       int64
	appointments map[int64]*models.Appointment
}

// NewAppointmentStore creates a new in-memory appointment store.
func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{
		appointments: make(map[int64]*models.Appointment),
	}
}

// Create inserts an appointment into the bound tenant.
func (s *AppointmentStore) Create(ctx context.Context, appt *models.Appointment) error {
	tc, ok := gateway.TenantFromContext(ctx)
	if !ok {
		return gateway.ErrUnbound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	appt.ID = s.nextID
	appt.TenantID = tc.TenantID
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now()
	}

	clone := *appt
	s.appointments[appt.ID] = &clone

	return nil
}

// Get retrieves an appointment of the bound tenant.
func (s *AppointmentStore) Get(ctx context.Context, id int64) (*models.Appointment, error) {
	tc, ok := gateway.TenantFromContext(ctx)
	if !ok {
		return nil, gateway.ErrUnbound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	appt, exists := s.appointments[id]
	if !exists || appt.TenantID != tc.TenantID {
		return nil, store.ErrAppointmentNotFound
	}

	clone := *appt
	return &clone, nil
}

// List returns appointments of the bound tenant, newest first.
func (s *AppointmentStore) List(ctx context.Context, customerID *uuid.UUID) ([]*models.Appointment, error) {
	tc, ok := gateway.TenantFromContext(ctx)
	if !ok {
		return nil, gateway.ErrUnbound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*models.Appointment{}
	for _, appt := range s.appointments {
		if appt.TenantID != tc.TenantID {
			continue
		}
		if customerID != nil && appt.CustomerID != *customerID {
			continue
		}
		clone := *appt
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID > result[j].ID
	})

	return result, nil
}
