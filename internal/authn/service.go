// Package authn implements the credential flows: login, refresh token
// rotation, logout and password change.
package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
	"github.com/wolfeidau/autoshop/internal/telemetry"
	"github.com/wolfeidau/autoshop/internal/tenant"
	"github.com/wolfeidau/autoshop/internal/token"
)

// DefaultLookupTimeout bounds each store call made by the service.
const DefaultLookupTimeout = 500 * time.Millisecond

// TenantResolver verifies a principal's membership of a tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, req tenant.Request) (*tenant.Resolution, error)
}

// Config configures a Service.
type Config struct {
	// BcryptCost is the work factor for new password hashes.
	// Default: bcrypt.DefaultCost
	BcryptCost int

	// LookupTimeout bounds each store call.
	// Default: 500ms
	LookupTimeout time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = DefaultLookupTimeout
	}
}

// Service runs the credential flows.
type Service struct {
	principals store.PrincipalStore
	sessions   store.SessionStore
	resolver   TenantResolver
	codec      *token.Codec
	cfg        Config
	dummyHash  []byte
	now        func() time.Time
}

// NewService creates a credential service.
func NewService(
	principals store.PrincipalStore,
	sessions store.SessionStore,
	resolver TenantResolver,
	codec *token.Codec,
	cfg Config,
) (*Service, error) {
	cfg.ApplyDefaults()
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	dummy, err := newDummyHash(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &Service{
		principals: principals,
		sessions:   sessions,
		resolver:   resolver,
		codec:      codec,
		cfg:        cfg,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

// ClientInfo is audit metadata recorded on new sessions.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// LoginInput is a password login request.
type LoginInput struct {
	Email      string
	Password   string
	TenantHint string
	Client     ClientInfo
}

// Tokens is a freshly issued access and refresh token pair.
type Tokens struct {
	SessionID   uuid.UUID
	PrincipalID uuid.UUID
	Tenant      *models.Tenant
	Role        models.Role
	Access      *token.Issued
	Refresh     *token.Issued
}

var errInvalidCredentials = fmt.Errorf("%w: invalid email or password", autherr.ErrUnauthenticated)

// Login verifies the password, checks the principal belongs to the
// requested tenant and starts a new session.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Tokens, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", autherr.ErrInvalidRequest)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	principal, err := s.principals.GetByEmail(lookupCtx, email)
	cancel()
	if err != nil {
		if !errors.Is(err, store.ErrPrincipalNotFound) {
			return nil, fmt.Errorf("principal lookup: %w", err)
		}
		// Same bcrypt work as a real comparison.
		_, _ = checkPassword(s.dummyHash, in.Password)
		return nil, errInvalidCredentials
	}

	ok, err := checkPassword(principal.PasswordHash, in.Password)
	if err != nil {
		return nil, err
	}
	if !ok || principal.IsDisabled() {
		zerolog.Ctx(ctx).Info().
			Str("principal_id", principal.PrincipalID.String()).
			Bool("disabled", principal.IsDisabled()).
			Msg("login rejected")
		return nil, errInvalidCredentials
	}

	res, err := s.resolver.Resolve(ctx, tenant.Request{PrincipalID: principal.PrincipalID, Hint: in.TenantHint})
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &models.Session{
		SessionID:      uuid.Must(uuid.NewV7()),
		PrincipalID:    principal.PrincipalID,
		TenantID:       res.Tenant.TenantID,
		CurrentTokenID: models.NewTokenID(),
		Generation:     1,
		CreatedAt:      now,
		LastRotatedAt:  now,
		ExpiresAt:      now.Add(s.codec.RefreshTTL()),
		UserAgent:      in.Client.UserAgent,
		IPAddress:      in.Client.IPAddress,
	}

	createCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	err = s.sessions.Create(createCtx, session)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	tokens, err := s.issue(ctx, principal, session, res)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("principal_id", principal.PrincipalID.String()).
		Str("session_id", session.SessionID.String()).
		Str("tenant_id", res.Tenant.TenantID.String()).
		Msg("login succeeded")

	return tokens, nil
}

// Refresh rotates the session behind refreshToken and issues a new pair.
// Presenting a refresh token that was already rotated revokes the session.
// The principal's membership of the session's tenant is re-verified, so a
// removed member cannot keep refreshing. Rotation is the only durable write
// and runs last, so a lookup that fails with Unavailable leaves the
// presented token valid for a retry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	m := telemetry.GetMetrics()

	v, err := s.codec.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		return nil, err
	}

	getCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	session, err := s.sessions.Get(getCtx, v.SessionID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %v", autherr.ErrRevoked, err)
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if session.PrincipalID != v.PrincipalID {
		return nil, fmt.Errorf("%w: token subject does not own session", autherr.ErrMalformed)
	}

	// A revoked session goes straight to Rotate, which reports reuse or
	// revocation without any further lookups.
	var (
		principal *models.Principal
		res       *tenant.Resolution
	)
	if !session.IsRevoked() {
		lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
		principal, err = s.principals.Get(lookupCtx, session.PrincipalID)
		cancel()
		if err != nil {
			if errors.Is(err, store.ErrPrincipalNotFound) {
				s.revoke(ctx, session.SessionID, models.RevokedReasonAdmin)
				return nil, fmt.Errorf("%w: principal no longer exists", autherr.ErrRevoked)
			}
			return nil, fmt.Errorf("principal lookup: %w", err)
		}
		if principal.IsDisabled() {
			s.revoke(ctx, session.SessionID, models.RevokedReasonAdmin)
			return nil, fmt.Errorf("%w: principal disabled", autherr.ErrRevoked)
		}

		res, err = s.resolver.Resolve(ctx, tenant.Request{PrincipalID: principal.PrincipalID, Hint: session.TenantID.String()})
		if err != nil {
			if errors.Is(err, autherr.ErrNotAMember) {
				s.revoke(ctx, session.SessionID, models.RevokedReasonMembership)
			}
			return nil, err
		}
	}

	rotateCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	rotated, err := s.sessions.Rotate(rotateCtx, v.SessionID, v.TokenID)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTokenReuse):
			m.RefreshReuseTotal.Add(ctx, 1)
			m.RecordRevocation(ctx, models.RevokedReasonReuseDetected, 1)
			zerolog.Ctx(ctx).Warn().
				Str("event", "refresh_token_reuse").
				Str("session_id", v.SessionID.String()).
				Str("principal_id", v.PrincipalID.String()).
				Int64("generation", session.Generation).
				Msg("refresh token reuse, session revoked")
			return nil, err
		case errors.Is(err, store.ErrSessionNotFound):
			return nil, fmt.Errorf("%w: %v", autherr.ErrRevoked, err)
		default:
			return nil, err
		}
	}

	m.SessionRotationsTotal.Add(ctx, 1)

	return s.issue(ctx, principal, rotated, res)
}

// Logout revokes the session. Unknown or already revoked sessions are not
// an error.
func (s *Service) Logout(ctx context.Context, sessionID uuid.UUID) error {
	revokeCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	err := s.sessions.Revoke(revokeCtx, sessionID, models.RevokedReasonLogout)
	if err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if err == nil {
		telemetry.GetMetrics().RecordRevocation(ctx, models.RevokedReasonLogout, 1)
	}
	return nil
}

// ChangePassword replaces the principal's password after verifying the
// current one, then revokes every session the principal holds.
func (s *Service) ChangePassword(ctx context.Context, principalID uuid.UUID, current, next string) (int, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	principal, err := s.principals.Get(lookupCtx, principalID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return 0, fmt.Errorf("%w: principal not found", autherr.ErrUnauthenticated)
		}
		return 0, fmt.Errorf("principal lookup: %w", err)
	}

	ok, err := checkPassword(principal.PasswordHash, current)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: current password is incorrect", autherr.ErrInvalidRequest)
	}

	hash, err := HashPassword(next, s.cfg.BcryptCost)
	if err != nil {
		return 0, err
	}

	updateCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	if err := s.principals.UpdatePassword(updateCtx, principalID, hash); err != nil {
		return 0, fmt.Errorf("failed to update password: %w", err)
	}

	n, err := s.sessions.RevokeByPrincipal(updateCtx, principalID, models.RevokedReasonPasswordChange)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	telemetry.GetMetrics().RecordRevocation(ctx, models.RevokedReasonPasswordChange, n)

	zerolog.Ctx(ctx).Info().
		Str("event", "session_revoked").
		Str("principal_id", principalID.String()).
		Int("sessions", n).
		Msg("password changed, sessions revoked")

	return n, nil
}

func (s *Service) issue(ctx context.Context, principal *models.Principal, session *models.Session, res *tenant.Resolution) (*Tokens, error) {
	params := token.IssueParams{
		PrincipalID: principal.PrincipalID,
		Kind:        principal.Kind,
		SessionID:   session.SessionID,
		TenantID:    res.Tenant.TenantID,
		Role:        res.Role,
	}

	access, err := s.codec.IssueAccess(params)
	if err != nil {
		return nil, err
	}

	params.TokenID = session.CurrentTokenID
	refresh, err := s.codec.IssueRefresh(params)
	if err != nil {
		return nil, err
	}

	issued := telemetry.GetMetrics().TokensIssuedTotal
	issued.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(token.TypeAccess))))
	issued.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(token.TypeRefresh))))

	return &Tokens{
		SessionID:   session.SessionID,
		PrincipalID: principal.PrincipalID,
		Tenant:      res.Tenant,
		Role:        res.Role,
		Access:      access,
		Refresh:     refresh,
	}, nil
}

// revoke ends a session as a side effect of a failed refresh. Failures are
// logged; the refresh is rejected either way.
func (s *Service) revoke(ctx context.Context, sessionID uuid.UUID, reason string) {
	revokeCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	if err := s.sessions.Revoke(revokeCtx, sessionID, reason); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to revoke session")
		return
	}
	telemetry.GetMetrics().RecordRevocation(ctx, reason, 1)
	zerolog.Ctx(ctx).Warn().
		Str("event", "session_revoked").
		Str("session_id", sessionID.String()).
		Str("reason", reason).
		Msg("session revoked")
}
