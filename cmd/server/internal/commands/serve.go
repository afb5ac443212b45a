package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/wolfeidau/autoshop/internal/authn"
	"github.com/wolfeidau/autoshop/internal/authz"
	"github.com/wolfeidau/autoshop/internal/bootstrap"
	"github.com/wolfeidau/autoshop/internal/csrf"
	"github.com/wolfeidau/autoshop/internal/logger"
	"github.com/wolfeidau/autoshop/internal/pipeline"
	"github.com/wolfeidau/autoshop/internal/ratelimit"
	"github.com/wolfeidau/autoshop/internal/server"
	"github.com/wolfeidau/autoshop/internal/store"
	memorystore "github.com/wolfeidau/autoshop/internal/store/memory"
	postgresstore "github.com/wolfeidau/autoshop/internal/store/postgres"
	"github.com/wolfeidau/autoshop/internal/telemetry"
	"github.com/wolfeidau/autoshop/internal/tenant"
	"github.com/wolfeidau/autoshop/internal/token"
)

type ServeCmd struct {
	// Server configuration
	Listen      string `help:"HTTP server listen address" default:"0.0.0.0:8443" env:"AUTOSHOP_LISTEN"`
	Cert        string `help:"path to TLS cert file" default:"" env:"AUTOSHOP_TLS_CERT"`
	Key         string `help:"path to TLS key file" default:"" env:"AUTOSHOP_TLS_KEY"`
	Environment string `help:"deployment environment" default:"production" env:"AUTOSHOP_ENV" enum:"production,staging,development,test"`
	TrustProxy  bool   `help:"trust X-Forwarded-For and X-Real-IP from a fronting proxy" default:"false" env:"AUTOSHOP_TRUST_PROXY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"AUTOSHOP_CORS_ORIGINS"`

	Tokens   TokenFlags         `embed:"" prefix:"token-"`
	Cookies  CookieFlags        `embed:"" prefix:"cookie-"`
	Tenancy  TenancyFlags       `embed:"" prefix:"tenant-"`
	Redis    RedisFlags         `embed:"" prefix:"redis-"`
	DevSeed  DevSeedFlags       `embed:"" prefix:"dev-seed-"`
	Postgres PostgresStoreFlags `embed:"" prefix:"postgres-"`

	// Store configuration
	StoreType string `help:"store type (memory or postgres)" default:"memory" env:"AUTOSHOP_STORE_TYPE" enum:"memory,postgres"`

	PermissionsFile string        `help:"YAML permission table overriding the built-in one" default:"" env:"AUTOSHOP_PERMISSIONS_FILE"`
	SweepInterval   time.Duration `help:"interval between expired session sweeps" default:"1h" env:"AUTOSHOP_SWEEP_INTERVAL"`

	// Observability
	Tracing     bool    `help:"enable tracing and metrics export" default:"false" env:"AUTOSHOP_TRACING"`
	SampleRatio float64 `help:"trace sampling ratio between 0 and 1" default:"1" env:"AUTOSHOP_TRACE_SAMPLE_RATIO"`
}

type TokenFlags struct {
	SigningKey string        `help:"ES256 private key PEM, or a path to one" default:"" env:"AUTOSHOP_TOKEN_SIGNING_KEY"`
	Issuer     string        `help:"token issuer" default:"https://api.autoshop.local" env:"AUTOSHOP_TOKEN_ISSUER"`
	Audience   string        `help:"token audience" default:"autoshop-api" env:"AUTOSHOP_TOKEN_AUDIENCE"`
	AccessTTL  time.Duration `help:"access token lifetime" default:"10m" env:"AUTOSHOP_TOKEN_ACCESS_TTL"`
	RefreshTTL time.Duration `help:"refresh token and session lifetime" default:"336h" env:"AUTOSHOP_TOKEN_REFRESH_TTL"`
	BcryptCost int           `help:"bcrypt cost for new password hashes" default:"12" env:"AUTOSHOP_BCRYPT_COST"`
}

type CookieFlags struct {
	CSRFSecret string `help:"HMAC key for csrf tokens, at least 32 bytes" default:"" env:"AUTOSHOP_CSRF_SECRET"`
	Insecure   bool   `help:"drop the Secure cookie attribute (plain HTTP development only)" default:"false" env:"AUTOSHOP_COOKIE_INSECURE"`
}

type TenancyFlags struct {
	CacheTTL      time.Duration `help:"how long a tenant hint lookup is cached" default:"5s" env:"AUTOSHOP_TENANT_CACHE_TTL"`
	LookupTimeout time.Duration `help:"timeout for each membership and session lookup" default:"500ms" env:"AUTOSHOP_TENANT_LOOKUP_TIMEOUT"`
	Bypass        bool          `help:"trust token role hints without a membership lookup (test builds only)" default:"false" env:"AUTOSHOP_TENANT_BYPASS"`
}

type RedisFlags struct {
	URL string `help:"Redis URL for the shared rate limiter; in-process limits when empty" default:"" env:"AUTOSHOP_REDIS_URL"`
}

type DevSeedFlags struct {
	Shop     string `help:"slug of a shop to create at startup (development only)" default:"" env:"AUTOSHOP_DEV_SEED_SHOP"`
	Email    string `help:"email of the seeded owner" default:"owner@autoshop.local" env:"AUTOSHOP_DEV_SEED_EMAIL"`
	Password string `help:"password of the seeded owner" default:"" env:"AUTOSHOP_DEV_SEED_PASSWORD"`
}

func (c *ServeCmd) Validate() error {
	production := c.Environment == "production" || c.Environment == "staging"

	if c.Tokens.SigningKey == "" && production {
		return errors.New("token signing key is required (--token-signing-key or AUTOSHOP_TOKEN_SIGNING_KEY)")
	}
	if len(c.Cookies.CSRFSecret) < csrf.MinSecretLength {
		return fmt.Errorf("csrf secret must be at least %d bytes (--cookie-csrf-secret or AUTOSHOP_CSRF_SECRET)", csrf.MinSecretLength)
	}
	if c.Cookies.Insecure && production {
		return errors.New("insecure cookies are not permitted in production")
	}
	if c.DevSeed.Shop != "" && production {
		return errors.New("dev seeding is not permitted in production")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return errors.New("trace sample ratio must be between 0 and 1")
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS certificate and key must be given together (--cert and --key)")
	}
	return nil
}

// backend is the set of stores the server runs on.
type backend struct {
	principals   store.PrincipalStore
	tenants      store.TenantStore
	memberships  store.MembershipStore
	sessions     store.SessionStore
	appointments store.AppointmentStore
	checks       []server.HealthCheck
	close        func()
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("version", globals.Version).
		Str("environment", c.Environment).
		Bool("debug", globals.Debug).
		Msg("Starting server")

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Float64("sample_ratio", c.SampleRatio).Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "autoshop-server", globals.Version, c.SampleRatio)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	codec, err := c.newCodec(log)
	if err != nil {
		return err
	}

	be, err := c.openBackend(ctx, log)
	if err != nil {
		return err
	}
	defer be.close()

	permissions := authz.Default()
	if c.PermissionsFile != "" {
		if permissions, err = authz.LoadFile(c.PermissionsFile); err != nil {
			return err
		}
		log.Info().Str("path", c.PermissionsFile).Msg("Loaded permission table")
	}

	resolver, err := tenant.NewResolver(be.tenants, be.memberships, tenant.Config{
		CacheTTL:      c.Tenancy.CacheTTL,
		LookupTimeout: c.Tenancy.LookupTimeout,
		Environment:   c.Environment,
		Bypass:        c.Tenancy.Bypass,
	})
	if err != nil {
		return err
	}

	var guardOpts []csrf.Option
	if c.Cookies.Insecure {
		log.Warn().Msg("Cookies are sent without the Secure attribute. This should only be used in development!")
		guardOpts = append(guardOpts, csrf.WithInsecureCookies())
	}
	guard, err := csrf.NewGuard([]byte(c.Cookies.CSRFSecret), guardOpts...)
	if err != nil {
		return err
	}

	auth, err := authn.NewService(be.principals, be.sessions, resolver, codec, authn.Config{
		BcryptCost:    c.Tokens.BcryptCost,
		LookupTimeout: c.Tenancy.LookupTimeout,
	})
	if err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Config{
		Codec:         codec,
		Sessions:      be.sessions,
		Resolver:      resolver,
		Permissions:   permissions,
		CSRF:          guard,
		LookupTimeout: c.Tenancy.LookupTimeout,
	})
	if err != nil {
		return err
	}

	loginLimiter, refreshLimiter, checks, closeRedis, err := c.newLimiters(log)
	if err != nil {
		return err
	}
	defer closeRedis()

	if c.DevSeed.Shop != "" {
		if err := c.seed(ctx, log, be); err != nil {
			return err
		}
	}

	srv, err := server.New(server.Config{
		Auth:            auth,
		Pipeline:        p,
		Codec:           codec,
		CSRF:            guard,
		Permissions:     permissions,
		Principals:      be.principals,
		Memberships:     be.memberships,
		Appointments:    be.appointments,
		LoginLimiter:    loginLimiter,
		RefreshLimiter:  refreshLimiter,
		Checks:          append(be.checks, checks...),
		CORSOrigins:     c.CORSOrigins,
		TrustProxy:      c.TrustProxy,
		InsecureCookies: c.Cookies.Insecure,
	})
	if err != nil {
		return err
	}

	sweeper := server.NewSessionSweeper(ctx, be.sessions, c.SweepInterval)
	defer sweeper.Stop()

	httpServer := configureHTTPServer(c.Listen, srv.Handler(log))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}

func (c *ServeCmd) newCodec(log zerolog.Logger) (*token.Codec, error) {
	var (
		keys *token.KeyManager
		err  error
	)
	if c.Tokens.SigningKey != "" {
		keys, err = token.LoadKeyManager(c.Tokens.SigningKey)
	} else {
		log.Warn().Msg("No signing key configured, generated an ephemeral key. Tokens will not survive a restart.")
		keys, err = token.GenerateKeyManager()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signing key: %w", err)
	}

	codec, err := token.NewCodec(keys, token.Config{
		Issuer:     c.Tokens.Issuer,
		Audience:   c.Tokens.Audience,
		AccessTTL:  c.Tokens.AccessTTL,
		RefreshTTL: c.Tokens.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("issuer", c.Tokens.Issuer).
		Str("kid", keys.Kid()).
		Msg("Token codec initialized")

	return codec, nil
}

func (c *ServeCmd) openBackend(ctx context.Context, log zerolog.Logger) (*backend, error) {
	switch c.StoreType {
	case "postgres":
		if err := c.Postgres.Validate(); err != nil {
			return nil, fmt.Errorf("failed to validate postgres flags: %w", err)
		}
		stores, err := postgresstore.Open(ctx, c.Postgres.config())
		if err != nil {
			return nil, err
		}
		log.Info().Str("rls_role", c.Postgres.RLSRole).Msg("Using PostgreSQL stores")
		return &backend{
			principals:   stores.Principals,
			tenants:      stores.Tenants,
			memberships:  stores.Memberships,
			sessions:     stores.Sessions,
			appointments: stores.Appointments,
			checks: []server.HealthCheck{
				{Name: "postgres", Check: stores.Pool.Ping},
			},
			close: stores.Close,
		}, nil

	default:
		if c.Environment == "production" || c.Environment == "staging" {
			log.Warn().Msg("Using in-memory stores; sessions and memberships are lost on restart")
		} else {
			log.Info().Msg("Using in-memory stores")
		}
		return &backend{
			principals:   memorystore.NewPrincipalStore(),
			tenants:      memorystore.NewTenantStore(),
			memberships:  memorystore.NewMembershipStore(),
			sessions:     memorystore.NewSessionStore(),
			appointments: memorystore.NewAppointmentStore(),
			close:        func() {},
		}, nil
	}
}

func (c *ServeCmd) newLimiters(log zerolog.Logger) (login, refresh ratelimit.Limiter, checks []server.HealthCheck, closeFn func(), err error) {
	if c.Redis.URL == "" {
		log.Info().Msg("Using in-process rate limits")
		return ratelimit.NewMemoryLimiter(ratelimit.LoginConfig()),
			ratelimit.NewMemoryLimiter(ratelimit.RefreshConfig()),
			nil, func() {}, nil
	}

	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	log.Info().Str("addr", opts.Addr).Msg("Using Redis rate limits")

	checks = []server.HealthCheck{{
		Name:  "redis",
		Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}}
	closeFn = func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis client")
		}
	}

	return ratelimit.NewRedisLimiter(client, ratelimit.LoginConfig(), "autoshop:ratelimit"),
		ratelimit.NewRedisLimiter(client, ratelimit.RefreshConfig(), "autoshop:ratelimit"),
		checks, closeFn, nil
}

func (c *ServeCmd) seed(ctx context.Context, log zerolog.Logger, be *backend) error {
	res, err := bootstrap.Bootstrap(ctx, bootstrap.Config{
		Tenants:       be.tenants,
		Principals:    be.principals,
		Memberships:   be.memberships,
		Slug:          c.DevSeed.Shop,
		OwnerEmail:    c.DevSeed.Email,
		OwnerName:     "Development Owner",
		OwnerPassword: c.DevSeed.Password,
		BcryptCost:    c.Tokens.BcryptCost,
	})
	if err != nil {
		return fmt.Errorf("failed to seed development data: %w", err)
	}

	log.Info().
		Str("tenant_id", res.Tenant.TenantID.String()).
		Str("slug", res.Tenant.Slug).
		Str("owner", res.Owner.Email).
		Bool("created", res.Created.Tenant).
		Msg("Development data ready")
	return nil
}
