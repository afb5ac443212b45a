package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/models"
)

func testConfig() Config {
	return Config{
		Issuer:     "https://api.autoshop.test",
		Audience:   "autoshop-api",
		AccessTTL:  10 * time.Minute,
		RefreshTTL: 14 * 24 * time.Hour,
	}
}

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	keys, err := GenerateKeyManager()
	require.NoError(t, err)
	codec, err := NewCodec(keys, testConfig(), opts...)
	require.NoError(t, err)
	return codec
}

func testParams() IssueParams {
	return IssueParams{
		PrincipalID: uuid.Must(uuid.NewV7()),
		Kind:        models.PrincipalKindStaff,
		SessionID:   uuid.Must(uuid.NewV7()),
		TenantID:    uuid.Must(uuid.NewV7()),
		Role:        models.RoleAdvisor,
	}
}

func TestCodec_accessRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	p := testParams()

	issued, err := codec.IssueAccess(p)
	require.NoError(t, err)
	require.NotEmpty(t, issued.TokenID)

	v, err := codec.Verify(issued.Token, TypeAccess)
	require.NoError(t, err)
	require.Equal(t, p.PrincipalID, v.PrincipalID)
	require.Equal(t, p.SessionID, v.SessionID)
	require.Equal(t, p.TenantID, v.TenantHint)
	require.Equal(t, models.RoleAdvisor, v.RoleHint)
	require.Equal(t, issued.TokenID, v.TokenID)
	require.Equal(t, models.PrincipalKindStaff, v.Kind)
}

func TestCodec_refreshCarriesSessionTokenID(t *testing.T) {
	codec := newTestCodec(t)
	p := testParams()
	p.TokenID = models.NewTokenID()

	issued, err := codec.IssueRefresh(p)
	require.NoError(t, err)

	v, err := codec.Verify(issued.Token, TypeRefresh)
	require.NoError(t, err)
	require.Equal(t, p.TokenID, v.TokenID)
	require.Equal(t, uuid.Nil, v.TenantHint, "refresh tokens carry no tenant hint")
}

func TestCodec_refreshRequiresTokenID(t *testing.T) {
	codec := newTestCodec(t)
	_, err := codec.IssueRefresh(testParams())
	require.Error(t, err)
}

func TestCodec_wrongTypeIsMalformed(t *testing.T) {
	codec := newTestCodec(t)
	p := testParams()
	p.TokenID = models.NewTokenID()

	refresh, err := codec.IssueRefresh(p)
	require.NoError(t, err)

	_, err = codec.Verify(refresh.Token, TypeAccess)
	require.ErrorIs(t, err, autherr.ErrMalformed)
}

func TestCodec_expiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	codec := newTestCodec(t, WithClock(func() time.Time { return clock() }))

	issued, err := codec.IssueAccess(testParams())
	require.NoError(t, err)

	t.Run("within leeway", func(t *testing.T) {
		clock = func() time.Time { return now.Add(10*time.Minute + 3*time.Second) }
		_, err := codec.Verify(issued.Token, TypeAccess)
		require.NoError(t, err)
	})

	t.Run("past leeway", func(t *testing.T) {
		clock = func() time.Time { return now.Add(10*time.Minute + 10*time.Second) }
		_, err := codec.Verify(issued.Token, TypeAccess)
		require.ErrorIs(t, err, autherr.ErrExpired)
	})
}

func TestCodec_tamperedSignature(t *testing.T) {
	codec := newTestCodec(t)
	issued, err := codec.IssueAccess(testParams())
	require.NoError(t, err)

	parts := strings.Split(issued.Token, ".")
	require.Len(t, parts, 3)

	// Swap in a payload from another token; signature no longer matches.
	other, err := codec.IssueAccess(testParams())
	require.NoError(t, err)
	parts[1] = strings.Split(other.Token, ".")[1]

	_, err = codec.Verify(strings.Join(parts, "."), TypeAccess)
	require.ErrorIs(t, err, autherr.ErrBadSignature)
}

func TestCodec_foreignKey(t *testing.T) {
	issuer := newTestCodec(t)
	verifier := newTestCodec(t)

	issued, err := issuer.IssueAccess(testParams())
	require.NoError(t, err)

	_, err = verifier.Verify(issued.Token, TypeAccess)
	require.ErrorIs(t, err, autherr.ErrBadSignature)
}

func TestCodec_rejectsUnexpectedAlgorithms(t *testing.T) {
	codec := newTestCodec(t)
	p := testParams()
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        models.NewTokenID(),
			Subject:   p.PrincipalID.String(),
			Issuer:    codec.cfg.Issuer,
			Audience:  jwt.ClaimStrings{codec.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Type:      TypeAccess,
		SessionID: p.SessionID.String(),
		Kind:      models.PrincipalKindStaff,
	}

	t.Run("none", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
		tok.Header["kid"] = codec.keys.Kid()
		signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Verify(signed, TypeAccess)
		require.ErrorIs(t, err, autherr.ErrBadSignature)
	})

	t.Run("HS256", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tok.Header["kid"] = codec.keys.Kid()
		signed, err := tok.SignedString([]byte(codec.keys.Kid()))
		require.NoError(t, err)

		_, err = codec.Verify(signed, TypeAccess)
		require.ErrorIs(t, err, autherr.ErrBadSignature)
	})
}

func TestCodec_malformedInput(t *testing.T) {
	codec := newTestCodec(t)

	for _, input := range []string{"", "not-a-jwt", "a.b.c", "eyJhbGciOiJFUzI1NiJ9..sig"} {
		_, err := codec.Verify(input, TypeAccess)
		require.ErrorIs(t, err, autherr.ErrMalformed, "input %q", input)
	}
}

func TestCodec_wrongAudienceIsMalformed(t *testing.T) {
	keys, err := GenerateKeyManager()
	require.NoError(t, err)

	cfg := testConfig()
	issuer, err := NewCodec(keys, cfg)
	require.NoError(t, err)

	cfg.Audience = "another-api"
	verifier, err := NewCodec(keys, cfg)
	require.NoError(t, err)

	issued, err := issuer.IssueAccess(testParams())
	require.NoError(t, err)

	_, err = verifier.Verify(issued.Token, TypeAccess)
	require.ErrorIs(t, err, autherr.ErrMalformed)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"access too long", func(c *Config) { c.AccessTTL = 16 * time.Minute }, true},
		{"refresh too short", func(c *Config) { c.RefreshTTL = 24 * time.Hour }, true},
		{"refresh too long", func(c *Config) { c.RefreshTTL = 31 * 24 * time.Hour }, true},
		{"missing issuer", func(c *Config) { c.Issuer = "" }, true},
		{"missing audience", func(c *Config) { c.Audience = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			cfg.ApplyDefaults()
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
