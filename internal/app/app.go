package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"schooladmin/internal/account"
	"schooladmin/internal/admin"
	"schooladmin/internal/auth"
	"schooladmin/internal/config"
	"schooladmin/internal/credential"
	"schooladmin/internal/db"
	"schooladmin/internal/health"
	"schooladmin/internal/intake"
	"schooladmin/internal/metrics"
	"schooladmin/internal/middleware"
	"schooladmin/internal/notify"
	"schooladmin/internal/provisioning"
	"schooladmin/internal/telemetry"
	"schooladmin/internal/tenant"
	"schooladmin/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
)

type App struct {
	config    *config.Config
	router    chi.Router
	server    *http.Server
	logger    *slog.Logger
	telemetry *telemetry.Telemetry

	platform  *bun.DB
	registry  *tenant.Registry
	publisher notify.Publisher
	redis     *redis.Client
}

// New connects to the platform store, migrates it and wires every component.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("initializing application", "env", cfg.Env, "version", Version, "commit", GitCommit)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.Init(ctx, ServiceName, Version, cfg.Telemetry.OTLPEndpoint, logger)
	if err != nil {
		return nil, err
	}

	platform, err := db.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(ctx, platform, tenant.PlatformModels()...); err != nil {
		db.Close(platform)
		return nil, fmt.Errorf("failed to run platform migrations: %w", err)
	}

	meter := otel.Meter(ServiceName)
	if err := tel.Metrics.DB().RegisterDB(platform.DB, meter); err != nil {
		logger.Warn("failed to register platform pool metrics", "error", err)
	}
	if err := tel.Metrics.Checks().RegisterServiceInfo(meter, ServiceName, Version, cfg.Env); err != nil {
		logger.Warn("failed to register service info metric", "error", err)
	}

	return build(cfg, logger, tel, platform, tenant.PostgresOpener(cfg.TenantDatabase))
}

func build(cfg *config.Config, logger *slog.Logger, tel *telemetry.Telemetry, platform *bun.DB, opener tenant.Opener) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &App{
		config:    cfg,
		router:    chi.NewRouter(),
		logger:    logger,
		telemetry: tel,
		platform:  platform,
	}
	m := tel.Metrics

	tenants := tenant.NewRepository(platform, m)
	pingTimeout := time.Duration(cfg.TenantDatabase.PingTimeout) * time.Second
	app.registry = tenant.NewRegistry(tenants, opener, pingTimeout, logger, m)

	app.publisher = newPublisher(cfg.Notify, cfg.IsProduction(), logger, m)
	dispatcher := notify.NewDispatcher(notify.Options{
		Production:        cfg.IsProduction(),
		PortalURLTemplate: cfg.Notify.PortalURLTemplate,
		FromAddress:       cfg.Notify.FromAddress,
	}, app.publisher, logger, m)

	provisioner := provisioning.NewService(app.registry, intake.New(nil), dispatcher, logger, m)
	adminService := admin.NewService(tenants, app.registry, provisioner, m)

	vault := app.newVault(cfg.Redis)
	webHandler, err := web.NewHandler(adminService, vault, logger, m)
	if err != nil {
		return nil, err
	}
	adminHandler := admin.NewHandler(adminService, logger)

	app.router.Use(m.Server().Middleware)

	// Apply CORS middleware globally
	app.router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	// Health endpoints (no auth required)
	health.NewHandler(platform, m).RegisterRoutes(app.router)

	requireAdmin := auth.RequireSuperAdmin(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, logger)

	app.router.Route("/api", func(r chi.Router) {
		r.Use(requireAdmin)
		adminHandler.RegisterRoutes(r)
	})

	app.router.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin)
		webHandler.RegisterRoutes(r)
	})

	logger.Info("application initialized successfully")
	return app, nil
}

// newPublisher falls back to a nil publisher when the broker is unreachable,
// or when production runs with the log transport. The dispatcher then reports
// every production notice as undelivered.
func newPublisher(cfg config.NotifyConfig, production bool, logger *slog.Logger, m *metrics.Metrics) notify.Publisher {
	switch cfg.Transport {
	case "nats":
		p, err := notify.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger, m)
		if err != nil {
			logger.Warn("failed to initialize NATS publisher", "error", err)
			return nil
		}
		logger.Info("NATS publisher initialized", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
		return p
	case "kafka":
		p, err := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger, m)
		if err != nil {
			logger.Warn("failed to initialize Kafka publisher", "error", err)
			return nil
		}
		logger.Info("Kafka publisher initialized", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		return p
	default:
		if production {
			logger.Warn("log notification transport in production, welcome messages will not be delivered", "transport", cfg.Transport)
			return nil
		}
		return notify.NewLogPublisher(logger)
	}
}

func (a *App) newVault(cfg config.RedisConfig) credential.Vault {
	ttl := cfg.CredentialTTLDuration()
	if cfg.Addr == "" {
		a.logger.Info("no redis configured, credentials summaries kept in memory")
		return credential.NewMemoryVault(ttl)
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	a.logger.Info("redis credential vault configured", "addr", cfg.Addr)
	return credential.NewRedisVault(a.redis, ttl)
}

func (a *App) Handler() http.Handler {
	return a.router
}

func (a *App) Run() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  time.Duration(a.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(a.config.Server.IdleTimeout) * time.Second,
	}

	a.logger.Info("server starting", "port", a.config.Server.Port)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down server")

	var errs []error
	if a.server != nil {
		errs = append(errs, a.server.Shutdown(ctx))
	}

	a.registry.Close()

	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}

	db.Close(a.platform)
	errs = append(errs, a.telemetry.Shutdown(ctx, a.logger))

	return errors.Join(errs...)
}

// MigrateTenant creates the schema of one tenant store and seeds its roles.
func MigrateTenant(ctx context.Context, cfg *config.Config, platform *bun.DB, tenantID int64, logger *slog.Logger, m *metrics.Metrics) error {
	t, err := tenant.NewRepository(platform, m).GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if t.DatabaseName == "" {
		return fmt.Errorf("tenant %d has no database configured", tenantID)
	}

	store := db.OpenTenant(cfg.TenantDatabase, t.DatabaseName)
	defer db.Close(store)

	if err := account.Migrate(ctx, store); err != nil {
		return fmt.Errorf("failed to migrate tenant %s: %w", t.Slug, err)
	}
	logger.Info("tenant store migrated", "tenant_id", t.ID, "slug", t.Slug, "database", t.DatabaseName)
	return nil
}
