package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/autoshop/cmd/shopctl/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Keygen    commands.KeygenCmd    `cmd:"" help:"Generate an ES256 token signing key"`
		Tenant    commands.TenantCmd    `cmd:"" help:"Manage shops"`
		Principal commands.PrincipalCmd `cmd:"" help:"Manage principals"`
		Member    commands.MemberCmd    `cmd:"" help:"Manage shop memberships"`
		Session   commands.SessionCmd   `cmd:"" help:"Manage sessions"`
		Debug     bool                  `help:"Enable debug mode."`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("shopctl"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
