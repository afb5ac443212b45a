// Package csrf implements the double-submit token check applied to
// cookie-authenticated mutations. A token is a random nonce plus an HMAC
// binding it to the session, so a token minted for one session is useless
// in another even if an attacker can plant cookies.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/wolfeidau/autoshop/internal/autherr"
)

const (
	// CookieName is the cookie carrying the token.
	CookieName = "csrf_token"

	// HeaderName is the header the client echoes the token in.
	HeaderName = "X-CSRF-Token"

	// MinSecretLength is the minimum HMAC key size in bytes.
	MinSecretLength = 32

	nonceSize = 16
)

// Guard issues and validates session-bound CSRF tokens.
type Guard struct {
	secret []byte
	secure bool
}

// Option configures a Guard.
type Option func(*Guard)

// WithInsecureCookies drops the Secure attribute for plain HTTP development.
func WithInsecureCookies() Option {
	return func(g *Guard) {
		g.secure = false
	}
}

// NewGuard creates a guard keyed by secret.
func NewGuard(secret []byte, opts ...Option) (*Guard, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("csrf secret must be at least %d bytes", MinSecretLength)
	}
	g := &Guard{
		secret: append([]byte(nil), secret...),
		secure: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Issue mints a token bound to sessionID.
func (g *Guard) Issue(sessionID uuid.UUID) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate csrf nonce: %w", err)
	}
	return base58.Encode(nonce) + "." + base58.Encode(g.mac(sessionID, nonce)), nil
}

// Validate checks that the cookie and header carry the same token and that
// the token is bound to sessionID. Any failure is an error of kind
// CSRFMismatch.
func (g *Guard) Validate(sessionID uuid.UUID, cookie, header string) error {
	if cookie == "" || header == "" {
		return fmt.Errorf("%w: token missing", autherr.ErrCSRFMismatch)
	}
	if subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
		return fmt.Errorf("%w: cookie and header differ", autherr.ErrCSRFMismatch)
	}

	nonce, mac, err := parse(header)
	if err != nil {
		return fmt.Errorf("%w: %v", autherr.ErrCSRFMismatch, err)
	}
	if !hmac.Equal(mac, g.mac(sessionID, nonce)) {
		return fmt.Errorf("%w: token not bound to session", autherr.ErrCSRFMismatch)
	}
	return nil
}

// Check validates the token pair carried by r.
func (g *Guard) Check(r *http.Request, sessionID uuid.UUID) error {
	var cookie string
	if c, err := r.Cookie(CookieName); err == nil {
		cookie = c.Value
	}
	return g.Validate(sessionID, cookie, r.Header.Get(HeaderName))
}

// SetCookie stores token in the csrf cookie. The cookie is readable by
// scripts so the client can echo it.
func (g *Guard) SetCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   g.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the csrf cookie.
func (g *Guard) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   g.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// IsMutation reports whether method changes state.
func IsMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (g *Guard) mac(sessionID uuid.UUID, nonce []byte) []byte {
	h := hmac.New(sha256.New, g.secret)
	h.Write([]byte(sessionID.String()))
	h.Write([]byte{'|'})
	h.Write(nonce)
	return h.Sum(nil)
}

func parse(token string) (nonce, mac []byte, err error) {
	encNonce, encMAC, ok := strings.Cut(token, ".")
	if !ok {
		return nil, nil, errors.New("token has no separator")
	}
	nonce, err = base58.Decode(encNonce)
	if err != nil || len(nonce) != nonceSize {
		return nil, nil, errors.New("invalid nonce")
	}
	mac, err = base58.Decode(encMAC)
	if err != nil || len(mac) != sha256.Size {
		return nil, nil, errors.New("invalid mac")
	}
	return nonce, mac, nil
}
