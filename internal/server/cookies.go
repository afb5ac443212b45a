package server

import (
	"net/http"

	"github.com/wolfeidau/autoshop/internal/authn"
	"github.com/wolfeidau/autoshop/internal/pipeline"
)

const (
	// RefreshCookieName carries the refresh token. It is only sent to /auth.
	RefreshCookieName = "refresh_token"

	refreshCookiePath = "/auth"
)

// setSessionCookies stores the token pair and a fresh csrf token for browser
// clients and returns the csrf token.
func (s *Server) setSessionCookies(w http.ResponseWriter, tokens *authn.Tokens) (string, error) {
	csrfToken, err := s.cfg.CSRF.Issue(tokens.SessionID)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     pipeline.AccessCookieName,
		Value:    tokens.Access.Token,
		Path:     "/",
		MaxAge:   int(s.cfg.Codec.AccessTTL().Seconds()),
		HttpOnly: true,
		Secure:   !s.cfg.InsecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    tokens.Refresh.Token,
		Path:     refreshCookiePath,
		MaxAge:   int(s.cfg.Codec.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   !s.cfg.InsecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	s.cfg.CSRF.SetCookie(w, csrfToken, s.cfg.Codec.RefreshTTL())

	return csrfToken, nil
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{pipeline.AccessCookieName, "/"},
		{RefreshCookieName, refreshCookiePath},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   !s.cfg.InsecureCookies,
		})
	}
	s.cfg.CSRF.ClearCookie(w)
}
