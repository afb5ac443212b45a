package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

// PrincipalStore implements store.PrincipalStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type PrincipalStore struct {
	mu sync.RWMutex

	principals        map[uuid.UUID]*models.Principal // principal_id -> Principal
	principalsByEmail map[string]uuid.UUID            // lower(email) -> principal_id
}

// NewPrincipalStore creates a new in-memory principal store.
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{
		principals:        make(map[uuid.UUID]*models.Principal),
		principalsByEmail: make(map[string]uuid.UUID),
	}
}

// Create creates a new principal in memory.
func (s *PrincipalStore) Create(ctx context.Context, principal *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(principal.Email)

	if _, exists := s.principals[principal.PrincipalID]; exists {
		return store.ErrPrincipalAlreadyExists
	}
	if _, exists := s.principalsByEmail[email]; exists {
		return store.ErrPrincipalAlreadyExists
	}

	clone := clonePrincipal(principal)
	clone.Email = email
	s.principals[principal.PrincipalID] = clone
	s.principalsByEmail[email] = principal.PrincipalID

	return nil
}

// Get retrieves a principal by ID.
func (s *PrincipalStore) Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principal, exists := s.principals[principalID]
	if !exists {
		return nil, store.ErrPrincipalNotFound
	}

	return clonePrincipal(principal), nil
}

// GetByEmail retrieves a principal by email address.
func (s *PrincipalStore) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principalID, exists := s.principalsByEmail[strings.ToLower(email)]
	if !exists {
		return nil, store.ErrPrincipalNotFound
	}

	return clonePrincipal(s.principals[principalID]), nil
}

// UpdatePassword replaces the principal's password hash.
func (s *PrincipalStore) UpdatePassword(ctx context.Context, principalID uuid.UUID, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	principal, exists := s.principals[principalID]
	if !exists {
		return store.ErrPrincipalNotFound
	}

	principal.PasswordHash = append([]byte(nil), passwordHash...)
	principal.UpdatedAt = time.Now()

	return nil
}

// clonePrincipal copies the principal including its hash slice.
func clonePrincipal(p *models.Principal) *models.Principal {
	clone := *p
	clone.PasswordHash = append([]byte(nil), p.PasswordHash...)
	return &clone
}
