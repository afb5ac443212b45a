// Package gateway binds database transactions to the request's tenant so that
// PostgreSQL row-level security filters every statement. Tables holding tenant
// rows carry a policy comparing tenant_id with the transaction-local setting
// app.tenant_id; a transaction that was never bound sees no rows and cannot
// insert any.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/autoshop/internal/models"
)

// TenantSetting is the PostgreSQL configuration parameter read by the RLS policies.
const TenantSetting = "app.tenant_id"

// ErrUnbound is returned when tenant-scoped data is accessed without a tenant
// context. No statement reaches the database in that case.
var ErrUnbound = errors.New("no tenant bound to request")

type contextKey int

const tenantContextKey contextKey = iota

// WithTenant attaches the resolved tenant context to ctx.
func WithTenant(ctx context.Context, tc *models.TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey, tc)
}

// TenantFromContext returns the tenant context attached by the request pipeline.
func TenantFromContext(ctx context.Context) (*models.TenantContext, bool) {
	tc, ok := ctx.Value(tenantContextKey).(*models.TenantContext)
	if !ok || tc == nil || tc.TenantID == uuid.Nil {
		return nil, false
	}
	return tc, true
}

// TxBeginner is satisfied by *pgxpool.Pool and pgx.Tx.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Gateway opens tenant-bound transactions.
type Gateway struct {
	db   TxBeginner
	role string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRole makes every tenant transaction run as the given database role.
// Superusers and BYPASSRLS roles ignore row-level security, so deployments
// that connect as such a role must name a restricted one here.
func WithRole(role string) Option {
	return func(g *Gateway) {
		g.role = role
	}
}

// New creates a gateway over db.
func New(db TxBeginner, opts ...Option) *Gateway {
	g := &Gateway{db: db}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Bind sets the transaction-local tenant. The setting is discarded at commit
// or rollback, so a pooled connection never carries it into another request.
func Bind(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return ErrUnbound
	}
	if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", TenantSetting, tenantID.String()); err != nil {
		return fmt.Errorf("failed to bind tenant: %w", err)
	}
	return nil
}

// InTenant runs fn in a read-write transaction bound to the context's tenant.
func (g *Gateway) InTenant(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return g.run(ctx, pgx.TxOptions{}, fn)
}

// InTenantReadOnly runs fn in a read-only transaction bound to the context's tenant.
func (g *Gateway) InTenantReadOnly(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return g.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (g *Gateway) run(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tc, ok := TenantFromContext(ctx)
	if !ok {
		zerolog.Ctx(ctx).Error().Msg("tenant-scoped data access without tenant context")
		return ErrUnbound
	}

	tx, err := g.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if g.role != "" {
		if _, err := tx.Exec(ctx, "SET LOCAL ROLE "+pgx.Identifier{g.role}.Sanitize()); err != nil {
			return fmt.Errorf("failed to assume tenant role: %w", err)
		}
	}

	if err := Bind(ctx, tx, tc.TenantID); err != nil {
		return err
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
