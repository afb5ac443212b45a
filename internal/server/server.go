package server

import (
	"errors"
	"fmt"
	"net/http"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/authn"
	"github.com/wolfeidau/autoshop/internal/authz"
	shopcsrf "github.com/wolfeidau/autoshop/internal/csrf"
	httpmiddleware "github.com/wolfeidau/autoshop/internal/http"
	"github.com/wolfeidau/autoshop/internal/logger"
	"github.com/wolfeidau/autoshop/internal/pipeline"
	"github.com/wolfeidau/autoshop/internal/ratelimit"
	"github.com/wolfeidau/autoshop/internal/store"
	"github.com/wolfeidau/autoshop/internal/token"
)

// Config wires the HTTP server's collaborators.
type Config struct {
	Auth         *authn.Service
	Pipeline     *pipeline.Pipeline
	Codec        *token.Codec
	CSRF         *shopcsrf.Guard
	Permissions  *authz.Table
	Principals   store.PrincipalStore
	Memberships  store.MembershipStore
	Appointments store.AppointmentStore

	// LoginLimiter and RefreshLimiter throttle the auth endpoints.
	LoginLimiter   ratelimit.Limiter
	RefreshLimiter ratelimit.Limiter

	// Checks are run by /health; any failure reports 503.
	Checks []HealthCheck

	// CORSOrigins are the browser origins allowed to call the API.
	CORSOrigins []string

	// TrustProxy honors X-Forwarded-For and X-Real-IP.
	TrustProxy bool

	// InsecureCookies drops the Secure attribute for plain-HTTP development.
	InsecureCookies bool
}

// Server serves the auth and tenant API.
type Server struct {
	cfg        Config
	protection *csrf.Protection
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Auth == nil || cfg.Pipeline == nil || cfg.Codec == nil || cfg.CSRF == nil {
		return nil, errors.New("server requires auth service, pipeline, codec and csrf guard")
	}
	if cfg.Principals == nil || cfg.Memberships == nil || cfg.Appointments == nil {
		return nil, errors.New("server requires principal, membership and appointment stores")
	}
	if cfg.Permissions == nil {
		cfg.Permissions = authz.Default()
	}
	if cfg.LoginLimiter == nil {
		cfg.LoginLimiter = ratelimit.NewMemoryLimiter(ratelimit.LoginConfig())
	}
	if cfg.RefreshLimiter == nil {
		cfg.RefreshLimiter = ratelimit.NewMemoryLimiter(ratelimit.RefreshConfig())
	}

	// Browser cross-origin protection sits in front of everything. Origins
	// allowed by CORS are trusted to send unsafe requests; the token-bound
	// CSRF check in the pipeline still covers their cookie mutations.
	protection := csrf.New()
	for _, origin := range cfg.CORSOrigins {
		if origin == "*" {
			continue
		}
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid cors origin: %w", err)
		}
	}

	return &Server{cfg: cfg, protection: protection}, nil
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	p := s.cfg.Pipeline

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /health", s.handleHealth)

	// Credential flows
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.Handle("POST /auth/logout", p.Authenticated(http.HandlerFunc(s.handleLogout)))
	mux.Handle("POST /auth/password", p.Authenticated(http.HandlerFunc(s.handleChangePassword)))
	mux.Handle("GET /auth/csrf", p.Authenticated(http.HandlerFunc(s.handleCSRF)))

	// Tenant API
	mux.Handle("GET /v1/me", p.Protect(permProfileRead, http.HandlerFunc(s.handleMe)))
	mux.Handle("GET /v1/members", p.Protect(permMembersRead, http.HandlerFunc(s.handleListMembers)))
	mux.Handle("PUT /v1/members/{principalID}", p.Protect(permMembersManage, http.HandlerFunc(s.handlePutMember)))
	mux.Handle("DELETE /v1/members/{principalID}", p.Protect(permMembersManage, http.HandlerFunc(s.handleDeleteMember)))
	mux.Handle("GET /v1/appointments", p.Protect(permAppointmentsRead, http.HandlerFunc(s.handleListAppointments)))
	mux.Handle("GET /v1/appointments/{appointmentID}", p.Protect(permAppointmentsRead, http.HandlerFunc(s.handleGetAppointment)))
	mux.Handle("POST /v1/appointments", p.Protect(permAppointmentsCreate, http.HandlerFunc(s.handleCreateAppointment)))

	var handler http.Handler = s.protection.HandlerWithFailHandler(mux, http.HandlerFunc(denyCrossOrigin))
	handler = withCORS(s.cfg.CORSOrigins, handler)
	handler = httpmiddleware.ClientIPMiddleware(s.cfg.TrustProxy)(handler)
	handler = logger.HTTPRequests(log)(handler)

	return handler
}

// denyCrossOrigin renders a rejected cross-origin request as the generic
// csrf error.
func denyCrossOrigin(w http.ResponseWriter, r *http.Request) {
	autherr.Write(w, r, fmt.Errorf("%w: cross-origin request from %q", autherr.ErrCSRFMismatch, r.Header.Get("Origin")))
}

// withCORS adds CORS support for the configured browser origins.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{
			"Authorization", "Content-Type",
			pipeline.TenantHeader, shopcsrf.HeaderName, logger.RequestIDHeader,
		},
		ExposedHeaders: []string{
			logger.RequestIDHeader, "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}
