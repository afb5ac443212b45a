package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/autoshop/internal/models"
	"github.com/wolfeidau/autoshop/internal/store"
)

type SessionCmd struct {
	Revoke SessionRevokeCmd `cmd:"" help:"Revoke one session or every session of a principal"`
}

type SessionRevokeCmd struct {
	DB DatabaseFlags `embed:"" prefix:"postgres-"`

	SessionID string `help:"session to revoke" xor:"target" required:""`
	Principal string `help:"principal email or id whose sessions are all revoked" xor:"target" required:""`
}

func (c *SessionRevokeCmd) Run(ctx context.Context, globals *Globals) error {
	stores, err := c.DB.open(ctx, globals)
	if err != nil {
		return err
	}
	defer stores.Close()

	if c.SessionID != "" {
		id, err := uuid.Parse(c.SessionID)
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}
		if err := stores.Sessions.Revoke(ctx, id, models.RevokedReasonAdmin); err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				return fmt.Errorf("no session %s", id)
			}
			return err
		}
		log.Info().Str("session_id", id.String()).Msg("Session revoked")
		return nil
	}

	p, err := findPrincipal(ctx, stores.Principals, c.Principal)
	if err != nil {
		return err
	}

	n, err := stores.Sessions.RevokeByPrincipal(ctx, p.PrincipalID, models.RevokedReasonAdmin)
	if err != nil {
		return err
	}

	log.Info().
		Str("principal_id", p.PrincipalID.String()).
		Int("revoked", n).
		Msg("Sessions revoked")
	return nil
}
