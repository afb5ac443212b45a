package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
	postgresstore "github.com/wolfeidau/autoshop/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

// DatabaseFlags locate the database every administrative command works on.
type DatabaseFlags struct {
	ConnString string `help:"PostgreSQL connection string" required:"" env:"POSTGRES_CONNECTION_STRING"`
	RLSRole    string `help:"role tenant-scoped transactions switch to" default:"autoshop_app" env:"AUTOSHOP_POSTGRES_RLS_ROLE"`
}

func (d *DatabaseFlags) open(ctx context.Context, globals *Globals) (*postgresstore.Stores, error) {
	level := zerolog.InfoLevel
	if globals.Debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	stores, err := postgresstore.Open(ctx, &postgresstore.Config{
		Pool: postgresstore.PoolConfig{
			ConnString:      d.ConnString,
			MaxConns:        2,
			MinConns:        1,
			ApplicationName: "shopctl",
		},
		RLSRole: d.RLSRole,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return stores, nil
}

// findTenant looks a shop up by id or slug.
func findTenant(ctx context.Context, tenants store.TenantStore, ref string) (*models.Tenant, error) {
	var (
		t   *models.Tenant
		err error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		t, err = tenants.Get(ctx, id)
	} else {
		t, err = tenants.GetBySlug(ctx, ref)
	}
	if errors.Is(err, store.ErrTenantNotFound) {
		return nil, fmt.Errorf("no shop %q", ref)
	}
	return t, err
}

// findPrincipal looks a principal up by id or email.
func findPrincipal(ctx context.Context, principals store.PrincipalStore, ref string) (*models.Principal, error) {
	var (
		p   *models.Principal
		err error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		p, err = principals.Get(ctx, id)
	} else {
		p, err = principals.GetByEmail(ctx, ref)
	}
	if errors.Is(err, store.ErrPrincipalNotFound) {
		return nil, fmt.Errorf("no principal %q", ref)
	}
	return p, err
}
