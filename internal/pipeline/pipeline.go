// Package pipeline authenticates, resolves and authorizes each request before
// it reaches a handler. A request moves through
//
//	Unauthenticated -> TokenVerified -> TenantResolved -> Authorized -> CSRFChecked -> Dispatched
//
// and any failed step ends it in Rejected with the error's kind. Session-level
// routes skip tenant resolution and authorization.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/authz"
	"github.com/wolfeidau/autoshop/internal/csrf"
	"github.com/wolfeidau/autoshop/internal/gateway"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
	"github.com/wolfeidau/autoshop/internal/telemetry"
	"github.com/wolfeidau/autoshop/internal/tenant"
	"github.com/wolfeidau/autoshop/internal/token"
)

const (
	// AccessCookieName is the cookie carrying the access token for browsers.
	AccessCookieName = "access_token"

	// TenantHeader names the tenant a request acts in, by slug or id.
	TenantHeader = "X-Tenant"

	DefaultLookupTimeout = 500 * time.Millisecond
)

// State is a step of the pipeline.
type State int

const (
	StateUnauthenticated State = iota
	StateTokenVerified
	StateTenantResolved
	StateAuthorized
	StateCSRFChecked
	StateDispatched
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateTokenVerified:
		return "token_verified"
	case StateTenantResolved:
		return "tenant_resolved"
	case StateAuthorized:
		return "authorized"
	case StateCSRFChecked:
		return "csrf_checked"
	case StateDispatched:
		return "dispatched"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// TenantResolver verifies a principal's membership of a tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, req tenant.Request) (*tenant.Resolution, error)
}

// RevocationChecker reports whether a session may still be used.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// Identity is the verified caller of a request.
type Identity struct {
	PrincipalID uuid.UUID
	Kind        models.PrincipalKind
	SessionID   uuid.UUID
	TenantHint  uuid.UUID
	RoleHint    models.Role

	// ViaCookie is set when the access token came from the cookie rather
	// than the Authorization header. Only such requests need CSRF checks.
	ViaCookie bool
}

type contextKey int

const identityContextKey contextKey = iota

// IdentityFromContext returns the identity attached by the pipeline.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok && id != nil
}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// Config wires the pipeline's collaborators.
type Config struct {
	Codec       *token.Codec
	Sessions    RevocationChecker
	Resolver    TenantResolver
	Permissions *authz.Table
	CSRF        *csrf.Guard

	// LookupTimeout bounds the revocation check.
	// Default: 500ms
	LookupTimeout time.Duration
}

// Pipeline evaluates requests.
type Pipeline struct {
	cfg Config
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Codec == nil || cfg.Sessions == nil || cfg.Resolver == nil || cfg.Permissions == nil || cfg.CSRF == nil {
		return nil, errors.New("pipeline requires codec, sessions, resolver, permissions and csrf guard")
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	return &Pipeline{cfg: cfg}, nil
}

// Outcome is the result of evaluating a request.
type Outcome struct {
	// State is the last state reached: StateDispatched on success,
	// StateRejected otherwise.
	State State

	// Reached is the last successful state before a rejection.
	Reached State

	// Context carries the identity and, for tenant routes, the tenant
	// context. Only set on success.
	Context context.Context
}

// Evaluate runs the pipeline for r. A nil perm selects the session-level
// pipeline, which skips tenant resolution and authorization.
func (p *Pipeline) Evaluate(r *http.Request, perm *authz.Permission) (*Outcome, error) {
	ctx := r.Context()
	state := StateUnauthenticated

	reject := func(err error) (*Outcome, error) {
		return &Outcome{State: StateRejected, Reached: state}, err
	}

	id, err := p.authenticate(ctx, r)
	if err != nil {
		return reject(err)
	}
	state = StateTokenVerified
	ctx = WithIdentity(ctx, id)

	logCtx := zerolog.Ctx(ctx).With().
		Str("principal_id", id.PrincipalID.String()).
		Str("session_id", id.SessionID.String())

	if perm != nil {
		res, err := p.cfg.Resolver.Resolve(ctx, tenant.Request{
			PrincipalID: id.PrincipalID,
			Hint:        tenantHint(r, id),
			RoleHint:    id.RoleHint,
			TokenTenant: id.TenantHint,
		})
		if err != nil {
			return reject(err)
		}
		state = StateTenantResolved

		if err := p.cfg.Permissions.Authorize(res.Role, *perm); err != nil {
			return reject(err)
		}
		state = StateAuthorized

		ctx = gateway.WithTenant(ctx, &models.TenantContext{
			TenantID:      res.Tenant.TenantID,
			TenantSlug:    res.Tenant.Slug,
			PrincipalID:   id.PrincipalID,
			PrincipalKind: id.Kind,
			Role:          res.Role,
			SessionID:     id.SessionID,
		})
		logCtx = logCtx.Str("tenant_id", res.Tenant.TenantID.String()).Str("role", string(res.Role))
	}

	if id.ViaCookie && csrf.IsMutation(r.Method) {
		if err := p.cfg.CSRF.Check(r, id.SessionID); err != nil {
			zerolog.Ctx(ctx).Warn().
				Str("event", "csrf_rejected").
				Str("session_id", id.SessionID.String()).
				Msg("csrf token rejected")
			return reject(err)
		}
		state = StateCSRFChecked
	}

	logger := logCtx.Logger()
	ctx = logger.WithContext(ctx)

	return &Outcome{State: StateDispatched, Reached: state, Context: ctx}, nil
}

func (p *Pipeline) authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	raw, viaCookie, err := extractToken(r)
	if err != nil {
		return nil, err
	}

	v, err := p.cfg.Codec.Verify(raw, token.TypeAccess)
	if err != nil {
		return nil, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, p.cfg.LookupTimeout)
	defer cancel()

	revoked, err := p.cfg.Sessions.IsRevoked(lookupCtx, v.SessionID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, autherr.ErrUnavailable) {
			return nil, fmt.Errorf("%w: revocation check: %v", store.ErrUnavailable, err)
		}
		return nil, fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: session %s", autherr.ErrRevoked, v.SessionID)
	}

	return &Identity{
		PrincipalID: v.PrincipalID,
		Kind:        v.Kind,
		SessionID:   v.SessionID,
		TenantHint:  v.TenantHint,
		RoleHint:    v.RoleHint,
		ViaCookie:   viaCookie,
	}, nil
}

// extractToken prefers the Authorization header. A header that is present
// but not a Bearer credential is rejected rather than falling back to the
// cookie.
func extractToken(r *http.Request) (string, bool, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(value) == "" {
			return "", false, fmt.Errorf("%w: unsupported authorization scheme", autherr.ErrUnauthenticated)
		}
		return strings.TrimSpace(value), false, nil
	}

	if c, err := r.Cookie(AccessCookieName); err == nil && c.Value != "" {
		return c.Value, true, nil
	}

	return "", false, fmt.Errorf("%w: no credential", autherr.ErrUnauthenticated)
}

func tenantHint(r *http.Request, id *Identity) string {
	if h := strings.TrimSpace(r.Header.Get(TenantHeader)); h != "" {
		return h
	}
	if id.TenantHint != uuid.Nil {
		return id.TenantHint.String()
	}
	return ""
}

// Protect runs the full pipeline requiring perm before next.
func (p *Pipeline) Protect(perm authz.Permission, next http.Handler) http.Handler {
	return p.middleware(&perm, next)
}

// Authenticated runs the session-level pipeline before next.
func (p *Pipeline) Authenticated(next http.Handler) http.Handler {
	return p.middleware(nil, next)
}

func (p *Pipeline) middleware(perm *authz.Permission, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := telemetry.GetMetrics()
		start := time.Now()

		outcome, err := p.Evaluate(r, perm)

		route := "session"
		if perm != nil {
			route = string(*perm)
		}
		m.PipelineDuration.Record(r.Context(), float64(time.Since(start).Microseconds())/1000,
			metric.WithAttributes(attribute.String("permission", route)))

		if err != nil {
			m.RecordRejection(r.Context(), autherr.KindOf(err).String())
			zerolog.Ctx(r.Context()).Debug().
				Str("reached", outcome.Reached.String()).
				Msg("pipeline rejected request")
			autherr.Write(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(outcome.Context))
	})
}
