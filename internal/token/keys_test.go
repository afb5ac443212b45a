package token

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyManager_pemRoundTrip(t *testing.T) {
	km, err := GenerateKeyManager()
	require.NoError(t, err)

	pemBytes, err := km.EncodePrivateKeyPEM()
	require.NoError(t, err)

	t.Run("inline", func(t *testing.T) {
		loaded, err := LoadKeyManager(string(pemBytes))
		require.NoError(t, err)
		require.Equal(t, km.Kid(), loaded.Kid())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "signing.pem")
		require.NoError(t, os.WriteFile(path, pemBytes, 0o600))

		loaded, err := LoadKeyManager(path)
		require.NoError(t, err)
		require.Equal(t, km.Kid(), loaded.Kid())
	})
}

func TestLoadKeyManager_errors(t *testing.T) {
	_, err := LoadKeyManager("-----BEGIN NOTHING-----")
	require.Error(t, err)

	_, err = LoadKeyManager(filepath.Join(t.TempDir(), "missing.pem"))
	require.Error(t, err)
}
