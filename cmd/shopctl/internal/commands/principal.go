package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/autoshop/internal/bootstrap"
	"github.com/wolfeidau/autoshop/internal/models"
)

type PrincipalCmd struct {
	Create PrincipalCreateCmd `cmd:"" help:"Create a staff member or customer"`
}

type PrincipalCreateCmd struct {
	DB DatabaseFlags `embed:"" prefix:"postgres-"`

	Email      string `arg:"" help:"login email"`
	Kind       string `help:"principal kind" default:"customer" enum:"staff,customer"`
	Name       string `help:"display name" default:""`
	Password   string `help:"initial password" required:"" env:"AUTOSHOP_PRINCIPAL_PASSWORD"`
	BcryptCost int    `help:"bcrypt cost for the password" default:"12"`
}

func (c *PrincipalCreateCmd) Run(ctx context.Context, globals *Globals) error {
	stores, err := c.DB.open(ctx, globals)
	if err != nil {
		return err
	}
	defer stores.Close()

	p, created, err := bootstrap.EnsurePrincipal(ctx, stores.Principals, bootstrap.PrincipalSpec{
		Kind:       models.PrincipalKind(c.Kind),
		Email:      c.Email,
		Name:       c.Name,
		Password:   c.Password,
		BcryptCost: c.BcryptCost,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("principal_id", p.PrincipalID.String()).
		Str("kind", string(p.Kind)).
		Bool("created", created).
		Msg("Principal ready")

	fmt.Println(p.PrincipalID)
	return nil
}
