package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

type membershipKey struct {
	tenantID    uuid.UUID
	principalID uuid.UUID
}

// MembershipStore implements store.MembershipStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type MembershipStore struct {
	mu sync.RWMutex

	memberships map[membershipKey]*models.Membership
}

// NewMembershipStore creates a new in-memory membership store.
func NewMembershipStore() *MembershipStore {
	return &MembershipStore{
		memberships: make(map[membershipKey]*models.Membership),
	}
}

// Get retrieves the membership of a principal in a tenant.
func (s *MembershipStore) Get(ctx context.Context, tenantID, principalID uuid.UUID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.memberships[membershipKey{tenantID, principalID}]
	if !exists {
		return nil, store.ErrMembershipNotFound
	}

	clone := *m
	return &clone, nil
}

// Put grants a membership or changes its role.
func (s *MembershipStore) Put(ctx context.Context, membership *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := membershipKey{membership.TenantID, membership.PrincipalID}
	existing, exists := s.memberships[key]

	if exists && existing.Role == models.RoleOwner && membership.Role != models.RoleOwner &&
		s.ownerCount(membership.TenantID) == 1 {
		return store.ErrLastOwner
	}

	clone := *membership
	if exists {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.memberships[key] = &clone

	return nil
}

// Delete removes a membership.
func (s *MembershipStore) Delete(ctx context.Context, tenantID, principalID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := membershipKey{tenantID, principalID}
	existing, exists := s.memberships[key]
	if !exists {
		return store.ErrMembershipNotFound
	}

	if existing.Role == models.RoleOwner && s.ownerCount(tenantID) == 1 {
		return store.ErrLastOwner
	}

	delete(s.memberships, key)
	return nil
}

// ListByTenant returns all memberships of a tenant ordered by creation.
func (s *MembershipStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Membership
	for key, m := range s.memberships {
		if key.tenantID == tenantID {
			clone := *m
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// ownerCount must be called with the lock held.
func (s *MembershipStore) ownerCount(tenantID uuid.UUID) int {
	n := 0
	for key, m := range s.memberships {
		if key.tenantID == tenantID && m.Role == models.RoleOwner {
			n++
		}
	}
	return n
}
