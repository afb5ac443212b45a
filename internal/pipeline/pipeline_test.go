package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/autoshop/internal/authz"
	"github.com/wolfeidau/autoshop/internal/csrf"
	"github.com/wolfeidau/autoshop/internal/gateway"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store/memory"
	"github.com/wolfeidau/autoshop/internal/tenant"
	"github.com/wolfeidau/autoshop/internal/token"
)

type fixture struct {
	pipeline    *Pipeline
	keys        *token.KeyManager
	codec       *token.Codec
	guard       *csrf.Guard
	sessions    *memory.SessionStore
	memberships *memory.MembershipStore
	shopA       *models.Tenant
	shopB       *models.Tenant
}

func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()
	ctx := context.Background()

	tenants := memory.NewTenantStore()
	memberships := memory.NewMembershipStore()
	sessions := memory.NewSessionStore()

	shopA := &models.Tenant{TenantID: uuid.Must(uuid.NewV7()), Slug: "shop-a", Name: "Shop A"}
	shopB := &models.Tenant{TenantID: uuid.Must(uuid.NewV7()), Slug: "shop-b", Name: "Shop B"}
	require.NoError(t, tenants.Create(ctx, shopA))
	require.NoError(t, tenants.Create(ctx, shopB))

	resolver, err := tenant.NewResolver(tenants, memberships, tenant.Config{})
	require.NoError(t, err)

	keys, err := token.GenerateKeyManager()
	require.NoError(t, err)
	codec, err := token.NewCodec(keys, token.Config{Issuer: "https://api.autoshop.test", Audience: "autoshop-api"})
	require.NoError(t, err)

	guard, err := csrf.NewGuard([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	cfg := Config{
		Codec:       codec,
		Sessions:    sessions,
		Resolver:    resolver,
		Permissions: authz.Default(),
		CSRF:        guard,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p, err := New(cfg)
	require.NoError(t, err)

	return &fixture{
		pipeline:    p,
		keys:        keys,
		codec:       codec,
		guard:       guard,
		sessions:    sessions,
		memberships: memberships,
		shopA:       shopA,
		shopB:       shopB,
	}
}

type caller struct {
	principalID uuid.UUID
	sessionID   uuid.UUID
	access      string
}

// member creates a principal with role in shop and a live session for it.
// The access token's hints name the shop and the given hint role.
func (f *fixture) member(t *testing.T, shop *models.Tenant, role, hintRole models.Role) *caller {
	t.Helper()
	ctx := context.Background()

	principalID := uuid.Must(uuid.NewV7())
	if role != "" {
		require.NoError(t, f.memberships.Put(ctx, &models.Membership{TenantID: shop.TenantID, PrincipalID: principalID, Role: role}))
	}

	session := &models.Session{
		SessionID:      uuid.Must(uuid.NewV7()),
		PrincipalID:    principalID,
		TenantID:       shop.TenantID,
		CurrentTokenID: models.NewTokenID(),
		Generation:     1,
		CreatedAt:      time.Now(),
		LastRotatedAt:  time.Now(),
		ExpiresAt:      time.Now().Add(time.Hour),
	}
	require.NoError(t, f.sessions.Create(ctx, session))

	issued, err := f.codec.IssueAccess(token.IssueParams{
		PrincipalID: principalID,
		Kind:        models.PrincipalKindStaff,
		SessionID:   session.SessionID,
		TenantID:    shop.TenantID,
		Role:        hintRole,
	})
	require.NoError(t, err)

	return &caller{principalID: principalID, sessionID: session.SessionID, access: issued.Token}
}

type seen struct {
	tc *models.TenantContext
	id *Identity
}

func (f *fixture) serve(h func(http.Handler) http.Handler, r *http.Request) (*httptest.ResponseRecorder, *seen) {
	s := &seen{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.tc, _ = gateway.TenantFromContext(r.Context())
		s.id, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	h(next).ServeHTTP(rec, r)
	return rec, s
}

func (f *fixture) protect(perm authz.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return f.pipeline.Protect(perm, next) }
}

func bearer(method, path, access string) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	r.Header.Set("Authorization", "Bearer "+access)
	return r
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error.Code
}

func TestProtect_dispatchesWithTenantContext(t *testing.T) {
	f := newFixture(t)
	c := f.member(t, f.shopA, models.RoleAdvisor, models.RoleAdvisor)

	rec, s := f.serve(f.protect(authz.PermMembersRead), bearer(http.MethodGet, "/v1/members", c.access))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, s.tc)
	require.Equal(t, f.shopA.TenantID, s.tc.TenantID)
	require.Equal(t, "shop-a", s.tc.TenantSlug)
	require.Equal(t, models.RoleAdvisor, s.tc.Role)
	require.Equal(t, c.sessionID, s.tc.SessionID)
	require.False(t, s.id.ViaCookie)
}

func TestProtect_tenantHeaderOverridesTokenHint(t *testing.T) {
	f := newFixture(t)
	c := f.member(t, f.shopA, models.RoleOwner, models.RoleOwner)
	require.NoError(t, f.memberships.Put(context.Background(), &models.Membership{TenantID: f.shopB.TenantID, PrincipalID: c.principalID, Role: models.RoleCustomer}))

	r := bearer(http.MethodGet, "/v1/me", c.access)
	r.Header.Set(TenantHeader, "shop-b")
	rec, s := f.serve(f.protect(authz.PermProfileRead), r)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, f.shopB.TenantID, s.tc.TenantID)
	require.Equal(t, models.RoleCustomer, s.tc.Role)
}

func TestProtect_crossTenantIsForbidden(t *testing.T) {
	f := newFixture(t)
	c := f.member(t, f.shopA, models.RoleOwner, models.RoleOwner)

	for _, hint := range []string{"shop-b", "no-such-shop", f.shopB.TenantID.String()} {
		r := bearer(http.MethodGet, "/v1/appointments", c.access)
		r.Header.Set(TenantHeader, hint)
		rec, s := f.serve(f.protect(authz.PermAppointmentsRead), r)

		require.Equal(t, http.StatusForbidden, rec.Code, hint)
		require.Equal(t, "forbidden", errorCode(t, rec), hint)
		require.Nil(t, s.tc)
	}
}

func TestProtect_roleHintIsNotTrusted(t *testing.T) {
	f := newFixture(t)
	c := f.member(t, f.shopA, models.RoleCustomer, models.RoleOwner)

	rec, _ := f.serve(f.protect(authz.PermMembersManage), bearer(http.MethodDelete, "/v1/members/x", c.access))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden", errorCode(t, rec))
}

func TestProtect_credentialFailures(t *testing.T) {
	f := newFixture(t)
	c := f.member(t, f.shopA, models.RoleOwner, models.RoleOwner)

	past := time.Now().Add(-time.Hour)
	oldCodec, err := token.NewCodec(f.keys, token.Config{Issuer: "https://api.autoshop.test", Audience: "autoshop-api"},
		token.WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	expired, err := oldCodec.IssueAccess(token.IssueParams{PrincipalID: c.principalID, SessionID: c.sessionID})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{name: "missing", header: "", code: "unauthenticated"},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", code: "unauthenticated"},
		{name: "empty bearer", header: "Bearer ", code: "unauthenticated"},
		{name: "garbage", header: "Bearer not.a.jwt", code: "unauthenticated"},
		{name: "expired", header: "Bearer " + expired.Token, code: "token_expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			outcome, err := f.pipeline.Evaluate(r, permission(authz.PermProfileRead))
			require.Error(t, err)
			require.Equal(t, StateRejected, outcome.State)
			require.Equal(t, StateUnauthenticated, outcome.Reached)

			rec, _ := f.serve(f.protect(authz.PermProfileRead), r)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, tt.code, errorCode(t, rec))
			require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestProtect_revokedSession(t *testing.T) {
	f := newFixture(t)
	c := f.member(t, f.shopA, models.RoleOwner, models.RoleOwner)
	require.NoError(t, f.sessions.Revoke(context.Background(), c.sessionID, models.RevokedReasonLogout))

	rec, _ := f.serve(f.protect(authz.PermProfileRead), bearer(http.MethodGet, "/v1/me", c.access))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "session_revoked", errorCode(t, rec))
}

type slowSessions struct{}

func (slowSessions) IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	<-ctx.Done()
	return true, ctx.Err()
}

func TestProtect_revocationTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Sessions = slowSessions{}
		c.LookupTimeout = 10 * time.Millisecond
	})
	c := f.member(t, f.shopA, models.RoleOwner, models.RoleOwner)

	rec, _ := f.serve(f.protect(authz.PermProfileRead), bearer(http.MethodGet, "/v1/me", c.access))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestProtect_cookieMutationRequiresCSRF(t *testing.T) {
	f := newFixture(t)
	c := f.member(t, f.shopA, models.RoleCustomer, models.RoleCustomer)

	csrfToken, err := f.guard.Issue(c.sessionID)
	require.NoError(t, err)

	newRequest := func(header string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/v1/appointments", nil)
		r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: c.access})
		r.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: csrfToken})
		if header != "" {
			r.Header.Set(csrf.HeaderName, header)
		}
		return r
	}

	rec, _ := f.serve(f.protect(authz.PermAppointmentsCreate), newRequest(""))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "csrf_failed", errorCode(t, rec))

	otherToken, err := f.guard.Issue(uuid.Must(uuid.NewV7()))
	require.NoError(t, err)
	rec, _ = f.serve(f.protect(authz.PermAppointmentsCreate), newRequest(otherToken))
	require.Equal(t, http.StatusForbidden, rec.Code)

	r := newRequest(csrfToken)
	outcome, err := f.pipeline.Evaluate(r, permission(authz.PermAppointmentsCreate))
	require.NoError(t, err)
	require.Equal(t, StateDispatched, outcome.State)
	require.Equal(t, StateCSRFChecked, outcome.Reached)

	// The same token stays valid for the session.
	rec, s := f.serve(f.protect(authz.PermAppointmentsCreate), newRequest(csrfToken))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, s.id.ViaCookie)
}

func TestProtect_cookieReadSkipsCSRF(t *testing.T) {
	f := newFixture(t)
	c := f.member(t, f.shopA, models.RoleCustomer, models.RoleCustomer)

	r := httptest.NewRequest(http.MethodGet, "/v1/appointments", nil)
	r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: c.access})

	outcome, err := f.pipeline.Evaluate(r, permission(authz.PermAppointmentsRead))
	require.NoError(t, err)
	require.Equal(t, StateAuthorized, outcome.Reached)
}

func TestProtect_bearerMutationSkipsCSRF(t *testing.T) {
	f := newFixture(t)
	c := f.member(t, f.shopA, models.RoleCustomer, models.RoleCustomer)

	rec, _ := f.serve(f.protect(authz.PermAppointmentsCreate), bearer(http.MethodPost, "/v1/appointments", c.access))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthenticated_skipsTenant(t *testing.T) {
	f := newFixture(t)
	// No membership at all: session routes still work.
	c := f.member(t, f.shopA, "", models.RoleCustomer)

	rec, s := f.serve(f.pipeline.Authenticated, bearer(http.MethodPost, "/auth/logout", c.access))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Nil(t, s.tc)
	require.Equal(t, c.sessionID, s.id.SessionID)

	rec, _ = f.serve(f.protect(authz.PermProfileRead), bearer(http.MethodGet, "/v1/me", c.access))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNew_requiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "tenant_resolved", StateTenantResolved.String())
	require.Equal(t, "rejected", StateRejected.String())
	require.Equal(t, "unknown", State(42).String())
}

func permission(p authz.Permission) *authz.Permission { return &p }
