package models

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// Revocation reasons recorded on a session.
const (
	RevokedReasonLogout         = "logout"
	RevokedReasonReuseDetected  = "reuse_detected"
	RevokedReasonPasswordChange = "password_change"
	RevokedReasonAdmin          = "admin"
	RevokedReasonMembership     = "membership_removed"
)

// Session is the server-side record behind a refresh token family.
// Only CurrentTokenID is accepted on the next refresh; presenting any earlier
// token id means the family has been stolen and the session is revoked.
type Session struct {
	SessionID   uuid.UUID // UUIDv7, carried in every token as "sid"
	PrincipalID uuid.UUID
	TenantID    uuid.UUID // Tenant selected at login, used as the token's tenant hint

	CurrentTokenID string // jti of the only refresh token that may rotate
	Generation     int64  // Incremented on every rotation

	RevokedAt     *time.Time
	RevokedReason string

	CreatedAt     time.Time
	LastRotatedAt time.Time
	ExpiresAt     time.Time

	// Optional audit metadata
	UserAgent string
	IPAddress string
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsRevoked returns true if the session has been revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// NewTokenID returns a random 128-bit token id, base58 encoded.
func NewTokenID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b) // crypto/rand.Read never returns an error
	return base58.Encode(b)
}
