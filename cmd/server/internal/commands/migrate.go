package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/autoshop/internal/logger"
	postgresstore "github.com/wolfeidau/autoshop/internal/store/postgres"
)

type MigrateCmd struct {
	Postgres PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	if err := c.Postgres.Validate(); err != nil {
		return err
	}

	cfg := c.Postgres.config()
	pool, err := postgresstore.NewPool(ctx, &cfg.Pool)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgresstore.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Migrations applied")
	return nil
}
