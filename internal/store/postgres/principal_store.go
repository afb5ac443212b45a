package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

const principalColumns = `
	principal_id, kind, email, name, password_hash,
	created_at, updated_at, disabled_at
`

// PrincipalStore implements store.PrincipalStore using PostgreSQL.
type PrincipalStore struct {
	pool *pgxpool.Pool
}

// NewPrincipalStore creates a new PostgreSQL-backed principal store.
// It shares the connection pool with other stores.
func NewPrincipalStore(pool *pgxpool.Pool) *PrincipalStore {
	return &PrincipalStore{
		pool: pool,
	}
}

// Create creates a new principal in the database.
func (s *PrincipalStore) Create(ctx context.Context, principal *models.Principal) error {
	query := `
		INSERT INTO principals (
			principal_id, kind, email, name, password_hash,
			created_at, updated_at, disabled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := s.pool.Exec(ctx, query,
		principal.PrincipalID,
		principal.Kind,
		strings.TrimSpace(principal.Email),
		principal.Name,
		principal.PasswordHash,
		principal.CreatedAt,
		principal.UpdatedAt,
		principal.DisabledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create principal: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("principal_id", principal.PrincipalID.String()).
		Str("kind", string(principal.Kind)).
		Msg("Created principal")

	return nil
}

// Get retrieves a principal by ID.
func (s *PrincipalStore) Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE principal_id = $1`, principalID)
	return scanPrincipal(row)
}

// GetByEmail retrieves a principal by email, ignoring case.
func (s *PrincipalStore) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email),
	)
	return scanPrincipal(row)
}

// UpdatePassword replaces the principal's password hash.
func (s *PrincipalStore) UpdatePassword(ctx context.Context, principalID uuid.UUID, passwordHash []byte) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE principals
		SET password_hash = $2, updated_at = $3
		WHERE principal_id = $1
	`, principalID, passwordHash, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update password: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrPrincipalNotFound
	}

	return nil
}

func scanPrincipal(row pgx.Row) (*models.Principal, error) {
	var p models.Principal
	err := row.Scan(
		&p.PrincipalID,
		&p.Kind,
		&p.Email,
		&p.Name,
		&p.PasswordHash,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.DisabledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", mapPostgresError(err))
	}
	return &p, nil
}
