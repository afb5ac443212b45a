package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/autoshop/internal/token"
)

// KeygenCmd writes a new ES256 private key in PEM form.
type KeygenCmd struct {
	Output string `help:"file to write the key to; stdout when empty" default:""`
	Force  bool   `help:"overwrite an existing key file" default:"false"`
}

func (k *KeygenCmd) Run(globals *Globals) error {
	keys, err := token.GenerateKeyManager()
	if err != nil {
		return err
	}

	data, err := keys.EncodePrivateKeyPEM()
	if err != nil {
		return err
	}

	if k.Output == "" {
		_, err := os.Stdout.Write(data)
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if k.Force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(k.Output, flags, 0600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	log.Info().Str("path", k.Output).Str("kid", keys.Kid()).Msg("Signing key written")
	return nil
}
