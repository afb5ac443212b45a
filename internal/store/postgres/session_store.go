package postgres

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

const sessionColumns = `
	session_id, principal_id, tenant_id,
	current_token_id, generation,
	revoked_at, revoked_reason,
	created_at, last_rotated_at, expires_at,
	user_agent, COALESCE(host(ip_address), '')
`

// rotateMaxTries bounds retries after serialization failures and deadlocks.
const rotateMaxTries = 3

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{
		pool: pool,
	}
}

// Create creates a new session in the database.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (
			session_id, principal_id, tenant_id,
			current_token_id, generation,
			created_at, last_rotated_at, expires_at,
			user_agent, ip_address
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10::inet
		)
	`

	// Convert empty IP address to nil for proper INET handling
	var ipAddress any
	if session.IPAddress != "" {
		ipAddress = session.IPAddress
	}

	_, err := s.pool.Exec(ctx, query,
		session.SessionID,
		session.PrincipalID,
		session.TenantID,
		session.CurrentTokenID,
		session.Generation,
		session.CreatedAt,
		session.LastRotatedAt,
		session.ExpiresAt,
		session.UserAgent,
		ipAddress,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Str("principal_id", session.PrincipalID.String()).
		Msg("Created session")

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, sessionID)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	return session, nil
}

// Rotate locks the session row, compares the presented token id and advances
// the generation. Conflicting transactions are retried a bounded number of times.
func (s *SessionStore) Rotate(ctx context.Context, sessionID uuid.UUID, presentedTokenID string) (*models.Session, error) {
	return backoff.Retry(ctx, func() (*models.Session, error) {
		session, err := s.rotate(ctx, sessionID, presentedTokenID)
		if err != nil && !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return session, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(rotateMaxTries),
	)
}

func (s *SessionStore) rotate(ctx context.Context, sessionID uuid.UUID, presentedTokenID string) (*models.Session, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1 FOR UPDATE`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to lock session: %w", mapPostgresError(err))
	}

	now := time.Now()
	if now.After(session.ExpiresAt) {
		return nil, store.ErrSessionExpired
	}

	if subtle.ConstantTimeCompare([]byte(presentedTokenID), []byte(session.CurrentTokenID)) != 1 {
		if !session.IsRevoked() {
			if _, err := tx.Exec(ctx, `
				UPDATE sessions
				SET revoked_at = $2, revoked_reason = $3
				WHERE session_id = $1
			`, sessionID, now, models.RevokedReasonReuseDetected); err != nil {
				return nil, fmt.Errorf("failed to revoke session: %w", mapPostgresError(err))
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("failed to commit session revocation: %w", mapPostgresError(err))
			}
		}

		return nil, store.ErrTokenReuse
	}

	if session.IsRevoked() {
		return nil, store.ErrSessionRevoked
	}

	session.CurrentTokenID = models.NewTokenID()
	session.Generation++
	session.LastRotatedAt = now

	if _, err := tx.Exec(ctx, `
		UPDATE sessions
		SET current_token_id = $2, generation = $3, last_rotated_at = $4
		WHERE session_id = $1
	`, sessionID, session.CurrentTokenID, session.Generation, session.LastRotatedAt); err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", mapPostgresError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit rotation: %w", mapPostgresError(err))
	}

	return session, nil
}

// Revoke marks a session revoked, keeping the first reason recorded.
func (s *SessionStore) Revoke(ctx context.Context, sessionID uuid.UUID, reason string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revoked_reason = CASE WHEN revoked_at IS NULL THEN $3 ELSE revoked_reason END
		WHERE session_id = $1
	`, sessionID, time.Now(), reason)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	log.Debug().
		Str("session_id", sessionID.String()).
		Str("reason", reason).
		Msg("Revoked session")

	return nil
}

// RevokeByPrincipal revokes all active sessions for a principal.
func (s *SessionStore) RevokeByPrincipal(ctx context.Context, principalID uuid.UUID, reason string) (int, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = $2, revoked_reason = $3
		WHERE principal_id = $1 AND revoked_at IS NULL
	`, principalID, time.Now(), reason)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions by principal: %w", mapPostgresError(err))
	}

	count := int(result.RowsAffected())

	log.Info().
		Str("principal_id", principalID.String()).
		Str("reason", reason).
		Int("count", count).
		Msg("Revoked all sessions for principal")

	return count, nil
}

// IsRevoked reports whether a session is revoked, expired or unknown.
func (s *SessionStore) IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM sessions
			WHERE session_id = $1 AND revoked_at IS NULL AND expires_at > now()
		)
	`, sessionID).Scan(&active)
	if err != nil {
		return true, fmt.Errorf("failed to check session revocation: %w", mapPostgresError(err))
	}

	return !active, nil
}

// DeleteExpired deletes all expired sessions (cleanup job).
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", mapPostgresError(err))
	}

	count := int(result.RowsAffected())

	if count > 0 {
		log.Info().
			Int("count", count).
			Msg("Deleted expired sessions")
	}

	return count, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.SessionID,
		&session.PrincipalID,
		&session.TenantID,
		&session.CurrentTokenID,
		&session.Generation,
		&session.RevokedAt,
		&session.RevokedReason,
		&session.CreatedAt,
		&session.LastRotatedAt,
		&session.ExpiresAt,
		&session.UserAgent,
		&session.IPAddress,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}
