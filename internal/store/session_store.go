package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/models"
)

// Sentinel errors for session store operations
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrSessionExpired       = fmt.Errorf("session expired: %w", autherr.ErrExpired)
	ErrSessionRevoked       = fmt.Errorf("session has been revoked: %w", autherr.ErrRevoked)
	ErrTokenReuse           = fmt.Errorf("presented refresh token is not current: %w", autherr.ErrReuseDetected)
)

// SessionStore persists refresh-token rotation state.
// Revocation must be visible to every reader as soon as the call returns.
type SessionStore interface {
	// Create creates a new session.
	// Returns ErrSessionAlreadyExists if the session ID is taken.
	Create(ctx context.Context, session *models.Session) error

	// Get retrieves a session by ID, including revoked sessions.
	// Returns ErrSessionNotFound if the session doesn't exist.
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)

	// Rotate atomically replaces the session's current token id when
	// presentedTokenID matches it, and returns the updated session.
	// Rotations of one session are serialized; of two concurrent calls
	// presenting the same token id exactly one succeeds.
	//
	// Returns ErrTokenReuse (and revokes the session) when presentedTokenID
	// is not current, ErrSessionRevoked, ErrSessionExpired or ErrSessionNotFound.
	Rotate(ctx context.Context, sessionID uuid.UUID, presentedTokenID string) (*models.Session, error)

	// Revoke marks a session revoked. Revoking an already revoked session
	// keeps the original reason and succeeds.
	// Returns ErrSessionNotFound if the session doesn't exist.
	Revoke(ctx context.Context, sessionID uuid.UUID, reason string) error

	// RevokeByPrincipal revokes every active session of a principal
	// (password change, admin action) and returns how many were revoked.
	RevokeByPrincipal(ctx context.Context, principalID uuid.UUID, reason string) (int, error)

	// IsRevoked reports whether the session can no longer be used.
	// Missing and expired sessions count as revoked.
	IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error)

	// DeleteExpired deletes all expired sessions (cleanup job).
	DeleteExpired(ctx context.Context) (int, error)
}
