package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfeidau/autoshop/internal/gateway"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

const appointmentColumns = `
	id, tenant_id, customer_id, vehicle, service,
	scheduled_at, notes, created_by, created_at
`

// AppointmentStore implements store.AppointmentStore. Queries carry no tenant
// predicate of their own; the row-level security policy supplies it.
type AppointmentStore struct {
	gw *gateway.Gateway
}

// NewAppointmentStore creates an appointment store over a tenant gateway.
func NewAppointmentStore(gw *gateway.Gateway) *AppointmentStore {
	return &AppointmentStore{gw: gw}
}

// Create inserts an appointment into the bound tenant.
func (s *AppointmentStore) Create(ctx context.Context, appt *models.Appointment) error {
	return s.gw.InTenant(ctx, func(ctx context.Context, tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO appointments (
				tenant_id, customer_id, vehicle, service,
				scheduled_at, notes, created_by
			) VALUES (
				NULLIF(current_setting('app.tenant_id', true), '')::uuid, $1, $2, $3, $4, $5, $6
			)
			RETURNING id, tenant_id, created_at
		`,
			appt.CustomerID,
			appt.Vehicle,
			appt.Service,
			appt.ScheduledAt,
			appt.Notes,
			appt.CreatedBy,
		).Scan(&appt.ID, &appt.TenantID, &appt.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create appointment: %w", mapPostgresError(err))
		}
		return nil
	})
}

// Get retrieves an appointment visible to the bound tenant.
func (s *AppointmentStore) Get(ctx context.Context, id int64) (*models.Appointment, error) {
	var appt *models.Appointment
	err := s.gw.InTenantReadOnly(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
		a, err := scanAppointment(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrAppointmentNotFound
			}
			return fmt.Errorf("failed to get appointment: %w", mapPostgresError(err))
		}
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// List returns appointments visible to the bound tenant, newest first.
func (s *AppointmentStore) List(ctx context.Context, customerID *uuid.UUID) ([]*models.Appointment, error) {
	result := []*models.Appointment{}
	err := s.gw.InTenantReadOnly(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE ($1::uuid IS NULL OR customer_id = $1)
			ORDER BY id DESC
		`, customerID)
		if err != nil {
			return fmt.Errorf("failed to list appointments: %w", mapPostgresError(err))
		}
		defer rows.Close()

		for rows.Next() {
			a, err := scanAppointment(rows)
			if err != nil {
				return fmt.Errorf("failed to scan appointment: %w", err)
			}
			result = append(result, a)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to list appointments: %w", mapPostgresError(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func scanAppointment(row pgx.Row) (*models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.CustomerID,
		&a.Vehicle,
		&a.Service,
		&a.ScheduledAt,
		&a.Notes,
		&a.CreatedBy,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
