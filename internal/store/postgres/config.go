package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/autoshop/internal/gateway"
)

// Config holds configuration for the PostgreSQL-backed stores.
type Config struct {
	Pool PoolConfig

	// AutoMigrate runs pending migrations before the stores are returned.
	AutoMigrate bool

	// RLSRole is the role tenant-scoped transactions switch to. Required when
	// the connecting user is a superuser or has BYPASSRLS.
	RLSRole string
}

// Stores bundles every store over one shared pool.
type Stores struct {
	Pool         *pgxpool.Pool
	Gateway      *gateway.Gateway
	Principals   *PrincipalStore
	Tenants      *TenantStore
	Memberships  *MembershipStore
	Sessions     *SessionStore
	Appointments *AppointmentStore
}

// Open connects to PostgreSQL and constructs all stores.
func Open(ctx context.Context, cfg *Config) (*Stores, error) {
	pool, err := NewPool(ctx, &cfg.Pool)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if err := CheckRLS(ctx, pool, cfg.RLSRole); err != nil {
		pool.Close()
		return nil, err
	}

	var opts []gateway.Option
	if cfg.RLSRole != "" {
		opts = append(opts, gateway.WithRole(cfg.RLSRole))
	}
	gw := gateway.New(pool, opts...)

	return &Stores{
		Pool:         pool,
		Gateway:      gw,
		Principals:   NewPrincipalStore(pool),
		Tenants:      NewTenantStore(pool),
		Memberships:  NewMembershipStore(pool),
		Sessions:     NewSessionStore(pool),
		Appointments: NewAppointmentStore(gw),
	}, nil
}

// Close releases the pool.
func (s *Stores) Close() {
	s.Pool.Close()
}

// CheckRLS verifies that tenant-scoped transactions will be subject to
// row-level security. A configured role must exist and not bypass RLS. With
// no role configured, a connecting user that bypasses RLS is logged loudly.
func CheckRLS(ctx context.Context, pool *pgxpool.Pool, role string) error {
	if role != "" {
		var bypass bool
		err := pool.QueryRow(ctx,
			`SELECT rolsuper OR rolbypassrls FROM pg_roles WHERE rolname = $1`, role,
		).Scan(&bypass)
		if err != nil {
			return fmt.Errorf("failed to look up RLS role %q: %w", role, mapPostgresError(err))
		}
		if bypass {
			return fmt.Errorf("RLS role %q bypasses row-level security", role)
		}
		return nil
	}

	var user string
	var bypass bool
	err := pool.QueryRow(ctx,
		`SELECT rolname, rolsuper OR rolbypassrls FROM pg_roles WHERE rolname = current_user`,
	).Scan(&user, &bypass)
	if err != nil {
		return fmt.Errorf("failed to inspect database role: %w", mapPostgresError(err))
	}
	if bypass {
		log.Warn().
			Str("event", "security").
			Str("db_user", user).
			Msg("Database user bypasses row-level security and no RLS role is configured; tenant isolation is not enforced by the database")
	}
	return nil
}
