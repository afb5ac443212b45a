package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

// MembershipStore implements store.MembershipStore using PostgreSQL.
type MembershipStore struct {
	pool *pgxpool.Pool
}

// NewMembershipStore creates a new PostgreSQL-backed membership store.
func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

// Get retrieves the membership of a principal in a tenant.
func (s *MembershipStore) Get(ctx context.Context, tenantID, principalID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := s.pool.QueryRow(ctx, `
		SELECT principal_id, tenant_id, role, created_at
		FROM tenant_memberships
		WHERE tenant_id = $1 AND principal_id = $2
	`, tenantID, principalID).Scan(&m.PrincipalID, &m.TenantID, &m.Role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", mapPostgresError(err))
	}
	return &m, nil
}

// Put grants a membership or changes its role. The tenant's owner rows are
// locked so two concurrent demotions cannot both pass the last-owner check.
func (s *MembershipStore) Put(ctx context.Context, membership *models.Membership) error {
	createdAt := membership.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return s.withOwnersLocked(ctx, membership.TenantID, func(tx pgx.Tx, owners []uuid.UUID) error {
		if membership.Role != models.RoleOwner && isOnlyOwner(owners, membership.PrincipalID) {
			return store.ErrLastOwner
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO tenant_memberships (tenant_id, principal_id, role, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant_id, principal_id) DO UPDATE SET role = EXCLUDED.role
		`, membership.TenantID, membership.PrincipalID, membership.Role, createdAt)
		if err != nil {
			return fmt.Errorf("failed to put membership: %w", mapPostgresError(err))
		}

		log.Info().
			Str("tenant_id", membership.TenantID.String()).
			Str("principal_id", membership.PrincipalID.String()).
			Str("role", string(membership.Role)).
			Msg("Granted membership")

		return nil
	})
}

// Delete removes a membership.
func (s *MembershipStore) Delete(ctx context.Context, tenantID, principalID uuid.UUID) error {
	return s.withOwnersLocked(ctx, tenantID, func(tx pgx.Tx, owners []uuid.UUID) error {
		if isOnlyOwner(owners, principalID) {
			return store.ErrLastOwner
		}

		result, err := tx.Exec(ctx,
			`DELETE FROM tenant_memberships WHERE tenant_id = $1 AND principal_id = $2`,
			tenantID, principalID)
		if err != nil {
			return fmt.Errorf("failed to delete membership: %w", mapPostgresError(err))
		}
		if result.RowsAffected() == 0 {
			return store.ErrMembershipNotFound
		}

		log.Info().
			Str("tenant_id", tenantID.String()).
			Str("principal_id", principalID.String()).
			Msg("Revoked membership")

		return nil
	})
}

// ListByTenant returns all memberships of a tenant ordered by creation.
func (s *MembershipStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT principal_id, tenant_id, role, created_at
		FROM tenant_memberships
		WHERE tenant_id = $1
		ORDER BY created_at, principal_id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", mapPostgresError(err))
	}
	defer rows.Close()

	result := []*models.Membership{}
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.PrincipalID, &m.TenantID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", mapPostgresError(err))
	}

	return result, nil
}

func (s *MembershipStore) withOwnersLocked(ctx context.Context, tenantID uuid.UUID, fn func(tx pgx.Tx, owners []uuid.UUID) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	rows, err := tx.Query(ctx, `
		SELECT principal_id FROM tenant_memberships
		WHERE tenant_id = $1 AND role = 'owner'
		FOR UPDATE
	`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to lock owners: %w", mapPostgresError(err))
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("failed to lock owners: %w", mapPostgresError(err))
	}

	if err := fn(tx, owners); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapPostgresError(err))
	}
	return nil
}

func isOnlyOwner(owners []uuid.UUID, principalID uuid.UUID) bool {
	return len(owners) == 1 && owners[0] == principalID
}
