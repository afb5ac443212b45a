package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/autoshop/internal/bootstrap"
)

type TenantCmd struct {
	Create TenantCreateCmd `cmd:"" help:"Create a shop and its first owner"`
	Show   TenantShowCmd   `cmd:"" help:"Show a shop and its members"`
}

type TenantCreateCmd struct {
	DB DatabaseFlags `embed:"" prefix:"postgres-"`

	Slug          string `arg:"" help:"URL-safe shop identifier"`
	Name          string `help:"display name" default:""`
	OwnerEmail    string `help:"email of the first owner" required:""`
	OwnerName     string `help:"name of the first owner" default:""`
	OwnerPassword string `help:"password for a new owner" env:"AUTOSHOP_OWNER_PASSWORD"`
	BcryptCost    int    `help:"bcrypt cost for the owner's password" default:"12"`
}

func (c *TenantCreateCmd) Run(ctx context.Context, globals *Globals) error {
	if err := bootstrap.ValidateSlug(c.Slug); err != nil {
		return err
	}

	stores, err := c.DB.open(ctx, globals)
	if err != nil {
		return err
	}
	defer stores.Close()

	res, err := bootstrap.Bootstrap(ctx, bootstrap.Config{
		Tenants:       stores.Tenants,
		Principals:    stores.Principals,
		Memberships:   stores.Memberships,
		Slug:          c.Slug,
		Name:          c.Name,
		OwnerEmail:    c.OwnerEmail,
		OwnerName:     c.OwnerName,
		OwnerPassword: c.OwnerPassword,
		BcryptCost:    c.BcryptCost,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("tenant_id", res.Tenant.TenantID.String()).
		Str("slug", res.Tenant.Slug).
		Bool("created", res.Created.Tenant).
		Str("owner_id", res.Owner.PrincipalID.String()).
		Bool("owner_created", res.Created.Owner).
		Msg("Shop ready")

	fmt.Println(res.Tenant.TenantID)
	return nil
}

type TenantShowCmd struct {
	DB DatabaseFlags `embed:"" prefix:"postgres-"`

	Tenant string `arg:"" help:"shop slug or id"`
}

func (c *TenantShowCmd) Run(ctx context.Context, globals *Globals) error {
	stores, err := c.DB.open(ctx, globals)
	if err != nil {
		return err
	}
	defer stores.Close()

	t, err := findTenant(ctx, stores.Tenants, c.Tenant)
	if err != nil {
		return err
	}

	members, err := stores.Memberships.ListByTenant(ctx, t.TenantID)
	if err != nil {
		return err
	}

	fmt.Printf("%s\t%s\t%s\n", t.TenantID, t.Slug, t.Name)
	for _, m := range members {
		email := "-"
		if p, err := stores.Principals.Get(ctx, m.PrincipalID); err == nil {
			email = p.Email
		}
		fmt.Printf("  %s\t%-8s\t%s\n", m.PrincipalID, m.Role, email)
	}

	if len(members) == 0 {
		log.Warn().Str("slug", t.Slug).Msg("Shop has no members")
	}
	return nil
}
