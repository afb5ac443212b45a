package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/authz"
	"github.com/wolfeidau/autoshop/internal/gateway"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

type meResponse struct {
	PrincipalID string             `json:"principal_id"`
	Kind        string             `json:"kind"`
	Email       string             `json:"email"`
	Name        string             `json:"name"`
	Tenant      tenantResponse     `json:"tenant"`
	Role        string             `json:"role"`
	Permissions []authz.Permission `json:"permissions"`
}

type memberResponse struct {
	PrincipalID string    `json:"principal_id"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type putMemberRequest struct {
	Role models.Role `json:"role"`
}

type appointmentRequest struct {
	CustomerID  string    `json:"customer_id"`
	Vehicle     string    `json:"vehicle"`
	Service     string    `json:"service"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes"`
}

type appointmentResponse struct {
	ID          int64     `json:"id"`
	CustomerID  string    `json:"customer_id"`
	Vehicle     string    `json:"vehicle"`
	Service     string    `json:"service"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func newAppointmentResponse(a *models.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:          a.ID,
		CustomerID:  a.CustomerID.String(),
		Vehicle:     a.Vehicle,
		Service:     a.Service,
		ScheduledAt: a.ScheduledAt,
		Notes:       a.Notes,
		CreatedBy:   a.CreatedBy.String(),
		CreatedAt:   a.CreatedAt,
	}
}

// notFound maps store misses onto the generic 404.
func notFound(err error) error {
	if store.IsNotFound(err) {
		return fmt.Errorf("%w: %v", autherr.ErrNotFound, err)
	}
	return err
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	tc, _ := gateway.TenantFromContext(r.Context())

	principal, err := s.cfg.Principals.Get(r.Context(), tc.PrincipalID)
	if err != nil {
		autherr.Write(w, r, notFound(err))
		return
	}

	writeJSON(w, r, http.StatusOK, meResponse{
		PrincipalID: principal.PrincipalID.String(),
		Kind:        string(principal.Kind),
		Email:       principal.Email,
		Name:        principal.Name,
		Tenant:      tenantResponse{ID: tc.TenantID.String(), Slug: tc.TenantSlug},
		Role:        string(tc.Role),
		Permissions: s.cfg.Permissions.Permissions(tc.Role),
	})
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := gateway.TenantFromContext(ctx)

	members, err := s.cfg.Memberships.ListByTenant(ctx, tc.TenantID)
	if err != nil {
		autherr.Write(w, r, err)
		return
	}

	result := make([]memberResponse, 0, len(members))
	for _, m := range members {
		resp := memberResponse{
			PrincipalID: m.PrincipalID.String(),
			Role:        string(m.Role),
			CreatedAt:   m.CreatedAt,
		}
		if p, err := s.cfg.Principals.Get(ctx, m.PrincipalID); err == nil {
			resp.Email, resp.Name = p.Email, p.Name
		} else if !store.IsNotFound(err) {
			autherr.Write(w, r, err)
			return
		}
		result = append(result, resp)
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"members": result})
}

// handlePutMember grants a role in the caller's tenant. The tenant always
// comes from the tenant context, never from the request.
func (s *Server) handlePutMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := gateway.TenantFromContext(ctx)

	principalID, err := uuid.Parse(r.PathValue("principalID"))
	if err != nil {
		autherr.Write(w, r, fmt.Errorf("%w: invalid principal id", autherr.ErrInvalidRequest))
		return
	}

	var req putMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		autherr.Write(w, r, err)
		return
	}
	if !req.Role.Valid() {
		autherr.Write(w, r, fmt.Errorf("%w: unknown role %q", autherr.ErrInvalidRequest, req.Role))
		return
	}

	principal, err := s.cfg.Principals.Get(ctx, principalID)
	if err != nil {
		autherr.Write(w, r, notFound(err))
		return
	}
	if !req.Role.AllowedFor(principal.Kind) {
		autherr.Write(w, r, fmt.Errorf("%w: %s principals cannot hold role %s", autherr.ErrInvalidRequest, principal.Kind, req.Role))
		return
	}

	membership := &models.Membership{
		TenantID:    tc.TenantID,
		PrincipalID: principalID,
		Role:        req.Role,
	}
	if err := s.cfg.Memberships.Put(ctx, membership); err != nil {
		autherr.Write(w, r, err)
		return
	}

	zerolog.Ctx(ctx).Info().
		Str("event", "membership_granted").
		Str("member_id", principalID.String()).
		Str("member_role", string(req.Role)).
		Msg("membership updated")

	writeJSON(w, r, http.StatusOK, memberResponse{
		PrincipalID: principalID.String(),
		Email:       principal.Email,
		Name:        principal.Name,
		Role:        string(req.Role),
		CreatedAt:   membership.CreatedAt,
	})
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := gateway.TenantFromContext(ctx)

	principalID, err := uuid.Parse(r.PathValue("principalID"))
	if err != nil {
		autherr.Write(w, r, fmt.Errorf("%w: invalid principal id", autherr.ErrInvalidRequest))
		return
	}

	if err := s.cfg.Memberships.Delete(ctx, tc.TenantID, principalID); err != nil {
		autherr.Write(w, r, notFound(err))
		return
	}

	zerolog.Ctx(ctx).Info().
		Str("event", "membership_removed").
		Str("member_id", principalID.String()).
		Msg("membership removed")

	w.WriteHeader(http.StatusNoContent)
}

// canManageAppointments reports whether the caller sees every appointment
// of the tenant rather than only their own.
func (s *Server) canManageAppointments(tc *models.TenantContext) bool {
	return s.cfg.Permissions.Has(tc.Role, authz.PermAppointmentsManage)
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := gateway.TenantFromContext(ctx)

	var customerID *uuid.UUID
	switch {
	case !s.canManageAppointments(tc):
		customerID = &tc.PrincipalID
	case r.URL.Query().Get("customer_id") != "":
		id, err := uuid.Parse(r.URL.Query().Get("customer_id"))
		if err != nil {
			autherr.Write(w, r, fmt.Errorf("%w: invalid customer id", autherr.ErrInvalidRequest))
			return
		}
		customerID = &id
	}

	appts, err := s.cfg.Appointments.List(ctx, customerID)
	if err != nil {
		autherr.Write(w, r, err)
		return
	}

	result := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		result = append(result, newAppointmentResponse(a))
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"appointments": result})
}

func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := gateway.TenantFromContext(ctx)

	id, err := strconv.ParseInt(r.PathValue("appointmentID"), 10, 64)
	if err != nil {
		autherr.Write(w, r, fmt.Errorf("%w: invalid appointment id", autherr.ErrInvalidRequest))
		return
	}

	appt, err := s.cfg.Appointments.Get(ctx, id)
	if err != nil {
		autherr.Write(w, r, notFound(err))
		return
	}
	if !s.canManageAppointments(tc) && appt.CustomerID != tc.PrincipalID {
		autherr.Write(w, r, fmt.Errorf("%w: appointment %d", autherr.ErrNotFound, id))
		return
	}

	writeJSON(w, r, http.StatusOK, newAppointmentResponse(appt))
}

func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := gateway.TenantFromContext(ctx)

	var req appointmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		autherr.Write(w, r, err)
		return
	}

	customerID, err := s.appointmentCustomer(r, tc, req.CustomerID)
	if err != nil {
		autherr.Write(w, r, err)
		return
	}

	req.Vehicle = strings.TrimSpace(req.Vehicle)
	req.Service = strings.TrimSpace(req.Service)
	if req.Vehicle == "" || req.Service == "" || req.ScheduledAt.IsZero() {
		autherr.Write(w, r, fmt.Errorf("%w: vehicle, service and scheduled_at are required", autherr.ErrInvalidRequest))
		return
	}

	appt := &models.Appointment{
		CustomerID:  customerID,
		Vehicle:     req.Vehicle,
		Service:     req.Service,
		ScheduledAt: req.ScheduledAt,
		Notes:       req.Notes,
		CreatedBy:   tc.PrincipalID,
	}
	if err := s.cfg.Appointments.Create(ctx, appt); err != nil {
		autherr.Write(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, newAppointmentResponse(appt))
}

// appointmentCustomer picks the customer an appointment is booked for.
// Customers always book for themselves; staff name a member of the tenant.
func (s *Server) appointmentCustomer(r *http.Request, tc *models.TenantContext, requested string) (uuid.UUID, error) {
	if !s.canManageAppointments(tc) {
		if requested != "" && requested != tc.PrincipalID.String() {
			return uuid.Nil, fmt.Errorf("%w: customers can only book for themselves", autherr.ErrForbidden)
		}
		return tc.PrincipalID, nil
	}

	if requested == "" {
		return uuid.Nil, fmt.Errorf("%w: customer_id is required", autherr.ErrInvalidRequest)
	}
	customerID, err := uuid.Parse(requested)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid customer id", autherr.ErrInvalidRequest)
	}

	if _, err := s.cfg.Memberships.Get(r.Context(), tc.TenantID, customerID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return uuid.Nil, fmt.Errorf("%w: customer is not a member of this shop", autherr.ErrInvalidRequest)
		}
		return uuid.Nil, err
	}
	return customerID, nil
}
