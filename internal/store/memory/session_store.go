package memory

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

// SessionStore implements store.SessionStore using in-memory storage.
// A single mutex serializes rotation, so it is only suitable for one process.
type SessionStore struct {
	mu sync.RWMutex

	sessions            map[uuid.UUID]*models.Session // session_id -> Session
	sessionsByPrincipal map[uuid.UUID][]uuid.UUID     // principal_id -> []session_id

	now func() time.Time
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:            make(map[uuid.UUID]*models.Session),
		sessionsByPrincipal: make(map[uuid.UUID][]uuid.UUID),
		now:                 time.Now,
	}
}

// Create creates a new session in memory.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; exists {
		return store.ErrSessionAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *session
	s.sessions[session.SessionID] = &clone

	s.sessionsByPrincipal[session.PrincipalID] = append(
		s.sessionsByPrincipal[session.PrincipalID],
		session.SessionID,
	)

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	clone := *session
	return &clone, nil
}

// Rotate swaps the current token id under the store lock.
func (s *SessionStore) Rotate(ctx context.Context, sessionID uuid.UUID, presentedTokenID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	now := s.now()
	if now.After(session.ExpiresAt) {
		return nil, store.ErrSessionExpired
	}

	if subtle.ConstantTimeCompare([]byte(presentedTokenID), []byte(session.CurrentTokenID)) != 1 {
		if !session.IsRevoked() {
			session.RevokedAt = &now
			session.RevokedReason = models.RevokedReasonReuseDetected
		}
		return nil, store.ErrTokenReuse
	}

	if session.IsRevoked() {
		return nil, store.ErrSessionRevoked
	}

	session.CurrentTokenID = models.NewTokenID()
	session.Generation++
	session.LastRotatedAt = now

	clone := *session
	return &clone, nil
}

// Revoke marks a session revoked.
func (s *SessionStore) Revoke(ctx context.Context, sessionID uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return store.ErrSessionNotFound
	}

	if !session.IsRevoked() {
		now := s.now()
		session.RevokedAt = &now
		session.RevokedReason = reason
	}

	return nil
}

// RevokeByPrincipal revokes all active sessions for a principal.
func (s *SessionStore) RevokeByPrincipal(ctx context.Context, principalID uuid.UUID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for _, sessionID := range s.sessionsByPrincipal[principalID] {
		session := s.sessions[sessionID]
		if session == nil || session.IsRevoked() {
			continue
		}
		session.RevokedAt = &now
		session.RevokedReason = reason
		count++
	}

	return count, nil
}

// IsRevoked reports whether a session is revoked, expired or unknown.
func (s *SessionStore) IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return true, nil
	}

	return session.IsRevoked() || s.now().After(session.ExpiresAt), nil
}

// DeleteExpired deletes all expired sessions (cleanup job).
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toDelete []uuid.UUID
	now := s.now()

	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			toDelete = append(toDelete, id)
		}
	}

	for _, sessionID := range toDelete {
		session := s.sessions[sessionID]
		s.removeFromPrincipalIndex(session.PrincipalID, sessionID)
		delete(s.sessions, sessionID)
	}

	return len(toDelete), nil
}

// removeFromPrincipalIndex removes a session ID from the principal's session list.
func (s *SessionStore) removeFromPrincipalIndex(principalID, sessionID uuid.UUID) {
	sessionIDs := s.sessionsByPrincipal[principalID]
	for i, id := range sessionIDs {
		if id == sessionID {
			s.sessionsByPrincipal[principalID] = append(sessionIDs[:i], sessionIDs[i+1:]...)
			break
		}
	}
	if len(s.sessionsByPrincipal[principalID]) == 0 {
		delete(s.sessionsByPrincipal, principalID)
	}
}
