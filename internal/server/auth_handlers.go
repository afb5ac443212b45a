package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/authn"
	httpmiddleware "github.com/wolfeidau/autoshop/internal/http"
	"github.com/wolfeidau/autoshop/internal/pipeline"
	"github.com/wolfeidau/autoshop/internal/ratelimit"
	"github.com/wolfeidau/autoshop/internal/token"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Tenant   string `json:"tenant"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type tenantResponse struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type tokenResponse struct {
	TokenType        string         `json:"token_type"`
	AccessToken      string         `json:"access_token"`
	ExpiresIn        int64          `json:"expires_in"`
	RefreshToken     string         `json:"refresh_token"`
	RefreshExpiresIn int64          `json:"refresh_expires_in"`
	SessionID        string         `json:"session_id"`
	Tenant           tenantResponse `json:"tenant"`
	Role             string         `json:"role"`
	CSRFToken        string         `json:"csrf_token,omitempty"`
}

func newTokenResponse(tokens *authn.Tokens, csrfToken string) tokenResponse {
	now := time.Now()
	return tokenResponse{
		TokenType:        "Bearer",
		AccessToken:      tokens.Access.Token,
		ExpiresIn:        int64(tokens.Access.ExpiresAt.Sub(now).Seconds()),
		RefreshToken:     tokens.Refresh.Token,
		RefreshExpiresIn: int64(tokens.Refresh.ExpiresAt.Sub(now).Seconds()),
		SessionID:        tokens.SessionID.String(),
		Tenant: tenantResponse{
			ID:   tokens.Tenant.TenantID.String(),
			Slug: tokens.Tenant.Slug,
			Name: tokens.Tenant.Name,
		},
		Role:      string(tokens.Role),
		CSRFToken: csrfToken,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientIP := httpmiddleware.ClientIPFromContext(ctx)

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		autherr.Write(w, r, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !ratelimit.Enforce(w, r, s.cfg.LoginLimiter, "login", "ip:"+clientIP, emailKey(email)) {
		return
	}

	tokens, err := s.cfg.Auth.Login(ctx, authn.LoginInput{
		Email:      email,
		Password:   req.Password,
		TenantHint: req.Tenant,
		Client: authn.ClientInfo{
			UserAgent: r.UserAgent(),
			IPAddress: clientIP,
		},
	})
	if err != nil {
		autherr.Write(w, r, err)
		return
	}

	csrfToken, err := s.setSessionCookies(w, tokens)
	if err != nil {
		autherr.Write(w, r, err)
		return
	}

	zerolog.Ctx(ctx).Info().
		Str("principal_id", tokens.PrincipalID.String()).
		Str("session_id", tokens.SessionID.String()).
		Str("tenant_id", tokens.Tenant.TenantID.String()).
		Msg("login succeeded")

	writeJSON(w, r, http.StatusOK, newTokenResponse(tokens, csrfToken))
}

// handleRefresh accepts the refresh token in the body or, for browsers, in
// the refresh cookie. The cookie path is a cookie-authenticated mutation and
// so requires the csrf token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !ratelimit.Enforce(w, r, s.cfg.RefreshLimiter, "refresh", "ip:"+httpmiddleware.ClientIPFromContext(ctx)) {
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			autherr.Write(w, r, err)
			return
		}
	}

	raw := req.RefreshToken
	viaCookie := false
	if raw == "" {
		c, err := r.Cookie(RefreshCookieName)
		if err != nil || c.Value == "" {
			autherr.Write(w, r, autherr.ErrUnauthenticated)
			return
		}
		raw, viaCookie = c.Value, true
	}

	if viaCookie {
		v, err := s.cfg.Codec.Verify(raw, token.TypeRefresh)
		if err != nil {
			autherr.Write(w, r, err)
			return
		}
		if err := s.cfg.CSRF.Check(r, v.SessionID); err != nil {
			zerolog.Ctx(ctx).Warn().
				Str("event", "csrf_rejected").
				Str("session_id", v.SessionID.String()).
				Msg("csrf token rejected")
			autherr.Write(w, r, err)
			return
		}
	}

	tokens, err := s.cfg.Auth.Refresh(ctx, raw)
	if err != nil {
		if viaCookie && autherr.KindOf(err).HTTPStatus() == http.StatusUnauthorized {
			s.clearSessionCookies(w)
		}
		autherr.Write(w, r, err)
		return
	}

	var csrfToken string
	if viaCookie {
		if csrfToken, err = s.setSessionCookies(w, tokens); err != nil {
			autherr.Write(w, r, err)
			return
		}
	}

	writeJSON(w, r, http.StatusOK, newTokenResponse(tokens, csrfToken))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := pipeline.IdentityFromContext(r.Context())

	if err := s.cfg.Auth.Logout(r.Context(), id.SessionID); err != nil {
		autherr.Write(w, r, err)
		return
	}

	s.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, _ := pipeline.IdentityFromContext(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		autherr.Write(w, r, err)
		return
	}

	n, err := s.cfg.Auth.ChangePassword(r.Context(), id.PrincipalID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		autherr.Write(w, r, err)
		return
	}

	// Every session, this one included, has been revoked.
	s.clearSessionCookies(w)
	writeJSON(w, r, http.StatusOK, map[string]int{"revoked_sessions": n})
}

// handleCSRF issues a csrf token bound to the caller's session, for
// browser clients that lost the cookie.
func (s *Server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	id, _ := pipeline.IdentityFromContext(r.Context())

	csrfToken, err := s.cfg.CSRF.Issue(id.SessionID)
	if err != nil {
		autherr.Write(w, r, err)
		return
	}

	s.cfg.CSRF.SetCookie(w, csrfToken, s.cfg.Codec.RefreshTTL())
	writeJSON(w, r, http.StatusOK, map[string]string{"csrf_token": csrfToken})
}

func emailKey(email string) string {
	if email == "" {
		return ""
	}
	return "email:" + email
}
