// Package token issues and verifies the ES256-signed access and refresh
// tokens. The signing algorithm is fixed server-side; the "alg" header of an
// inbound token is never trusted.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/models"
)

// Type distinguishes access tokens from refresh tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

var errUnknownKey = errors.New("unknown signing key")

// Claims is the JWT payload for both token types.
// TenantID and Role are hints only; the pipeline re-verifies membership.
type Claims struct {
	jwt.RegisteredClaims
	Type      Type                 `json:"typ"`
	SessionID string               `json:"sid"`
	Kind      models.PrincipalKind `json:"knd"`
	TenantID  string               `json:"tid,omitempty"`
	Role      models.Role          `json:"role,omitempty"`
}

// Verified is the result of a successful verification.
type Verified struct {
	Type        Type
	TokenID     string
	PrincipalID uuid.UUID
	SessionID   uuid.UUID
	Kind        models.PrincipalKind
	TenantHint  uuid.UUID // uuid.Nil when absent
	RoleHint    models.Role
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// IssueParams describes the subject of a new token.
type IssueParams struct {
	PrincipalID uuid.UUID
	Kind        models.PrincipalKind
	SessionID   uuid.UUID
	TenantID    uuid.UUID
	Role        models.Role

	// TokenID is the jti to embed. Refresh tokens must use the session's
	// current token id; a random id is generated when empty.
	TokenID string
}

// Issued is a signed token and its metadata.
type Issued struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// Codec signs and verifies tokens with a single key.
type Codec struct {
	keys *KeyManager
	cfg  Config
	now  func() time.Time
}

// NewCodec creates a codec. The config is defaulted and validated.
func NewCodec(keys *KeyManager, cfg Config, opts ...Option) (*Codec, error) {
	if keys == nil {
		return nil, errors.New("key manager is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid token config: %w", err)
	}

	c := &Codec{keys: keys, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.cfg.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.cfg.RefreshTTL }

// IssueAccess issues a short-lived access token.
func (c *Codec) IssueAccess(p IssueParams) (*Issued, error) {
	return c.issue(TypeAccess, c.cfg.AccessTTL, p)
}

// IssueRefresh issues a refresh token bound to the session's current token id.
func (c *Codec) IssueRefresh(p IssueParams) (*Issued, error) {
	if p.TokenID == "" {
		return nil, errors.New("refresh token requires the session's token id")
	}
	return c.issue(TypeRefresh, c.cfg.RefreshTTL, p)
}

func (c *Codec) issue(typ Type, ttl time.Duration, p IssueParams) (*Issued, error) {
	if p.PrincipalID == uuid.Nil || p.SessionID == uuid.Nil {
		return nil, errors.New("principal and session are required")
	}

	jti := p.TokenID
	if jti == "" {
		jti = models.NewTokenID()
	}

	now := c.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   p.PrincipalID.String(),
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type:      typ,
		SessionID: p.SessionID.String(),
		Kind:      p.Kind,
	}
	if typ == TypeAccess && p.TenantID != uuid.Nil {
		claims.TenantID = p.TenantID.String()
		claims.Role = p.Role
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = c.keys.Kid()

	signed, err := token.SignedString(c.keys.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Issued{Token: signed, TokenID: jti, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, expiry, issuer, audience and token type.
// Errors wrap autherr.ErrMalformed, autherr.ErrExpired or autherr.ErrBadSignature.
func (c *Codec) Verify(tokenString string, typ Type) (*Verified, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("empty token: %w", autherr.ErrMalformed)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(c.cfg.Audience),
		jwt.WithLeeway(c.cfg.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, mapParseError(err)
	}

	if claims.Type != typ {
		return nil, fmt.Errorf("expected %s token, got %q: %w", typ, claims.Type, autherr.ErrMalformed)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("missing jti: %w", autherr.ErrMalformed)
	}

	principalID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid sub: %w", autherr.ErrMalformed)
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("invalid sid: %w", autherr.ErrMalformed)
	}
	if !claims.Kind.Valid() {
		return nil, fmt.Errorf("invalid principal kind %q: %w", claims.Kind, autherr.ErrMalformed)
	}

	v := &Verified{
		Type:        claims.Type,
		TokenID:     claims.ID,
		PrincipalID: principalID,
		SessionID:   sessionID,
		Kind:        claims.Kind,
		RoleHint:    claims.Role,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}

	if claims.TenantID != "" {
		tenantID, err := uuid.Parse(claims.TenantID)
		if err != nil {
			return nil, fmt.Errorf("invalid tid: %w", autherr.ErrMalformed)
		}
		v.TenantHint = tenantID
	}

	return v, nil
}

func (c *Codec) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid != c.keys.Kid() {
		return nil, errUnknownKey
	}
	return c.keys.PublicKey(), nil
}

// mapParseError translates jwt errors into the rejection taxonomy. The jwt
// parser checks the signature before claims, so an expired token here always
// carried a valid signature.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%v: %w", err, autherr.ErrMalformed)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%v: %w", err, autherr.ErrBadSignature)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%v: %w", err, autherr.ErrExpired)
	default:
		// Issuer, audience, nbf, iat and missing-claim failures.
		return fmt.Errorf("%v: %w", err, autherr.ErrMalformed)
	}
}
