package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/autoshop/internal/bootstrap"
	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

type MemberCmd struct {
	Grant  MemberGrantCmd  `cmd:"" help:"Give a principal a role in a shop"`
	Revoke MemberRevokeCmd `cmd:"" help:"Remove a principal from a shop"`
}

type MemberGrantCmd struct {
	DB DatabaseFlags `embed:"" prefix:"postgres-"`

	Tenant    string `arg:"" help:"shop slug or id"`
	Principal string `arg:"" help:"principal email or id"`
	Role      string `help:"role to grant" required:"" enum:"owner,advisor,customer"`
}

func (c *MemberGrantCmd) Run(ctx context.Context, globals *Globals) error {
	stores, err := c.DB.open(ctx, globals)
	if err != nil {
		return err
	}
	defer stores.Close()

	t, err := findTenant(ctx, stores.Tenants, c.Tenant)
	if err != nil {
		return err
	}
	p, err := findPrincipal(ctx, stores.Principals, c.Principal)
	if err != nil {
		return err
	}

	if err := bootstrap.Grant(ctx, stores.Memberships, t.TenantID, p, models.Role(c.Role)); err != nil {
		return err
	}

	log.Info().
		Str("slug", t.Slug).
		Str("principal_id", p.PrincipalID.String()).
		Str("role", c.Role).
		Msg("Membership granted")
	return nil
}

type MemberRevokeCmd struct {
	DB DatabaseFlags `embed:"" prefix:"postgres-"`

	Tenant    string `arg:"" help:"shop slug or id"`
	Principal string `arg:"" help:"principal email or id"`
}

func (c *MemberRevokeCmd) Run(ctx context.Context, globals *Globals) error {
	stores, err := c.DB.open(ctx, globals)
	if err != nil {
		return err
	}
	defer stores.Close()

	t, err := findTenant(ctx, stores.Tenants, c.Tenant)
	if err != nil {
		return err
	}
	p, err := findPrincipal(ctx, stores.Principals, c.Principal)
	if err != nil {
		return err
	}

	err = stores.Memberships.Delete(ctx, t.TenantID, p.PrincipalID)
	switch {
	case errors.Is(err, store.ErrMembershipNotFound):
		return fmt.Errorf("%s is not a member of %s", p.Email, t.Slug)
	case errors.Is(err, store.ErrLastOwner):
		return fmt.Errorf("%s is the last owner of %s; grant another owner first", p.Email, t.Slug)
	case err != nil:
		return err
	}

	log.Info().
		Str("slug", t.Slug).
		Str("principal_id", p.PrincipalID.String()).
		Msg("Membership removed")
	return nil
}
