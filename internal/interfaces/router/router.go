package router

import (
	"context"
	"fmt"
	"net/http"

	"greencredits-ledger/internal/application/certificates"
	"greencredits-ledger/internal/application/gateway"
	"greencredits-ledger/internal/application/ingest"
	"greencredits-ledger/internal/config"
	"greencredits-ledger/internal/infrastructure/database"
	"greencredits-ledger/internal/infrastructure/redisledger"
	certhandler "greencredits-ledger/internal/interfaces/handlers/certificates"
	healthhandler "greencredits-ledger/internal/interfaces/handlers/health"
	ledgerhandler "greencredits-ledger/internal/interfaces/handlers/ledger"
	"greencredits-ledger/internal/ledger"
	"greencredits-ledger/internal/metrics"
	"greencredits-ledger/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Deps are the long-lived handles the app runs on. DB and Rdb are nil
// when not configured.
type Deps struct {
	DB       *gorm.DB
	Rdb      *redis.Client
	Ledger   *ledger.Ledger
	Registry *prometheus.Registry
}

// Close releases the DB and Redis handles.
func (d *Deps) Close() error {
	var firstErr error
	if d.Rdb != nil {
		firstErr = d.Rdb.Close()
	}
	if d.DB != nil {
		if sqlDB, err := d.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// OpenDeps connects the configured stores and builds the ledger on the
// selected backend.
func OpenDeps(ctx context.Context, cfg *config.Config) (*Deps, error) {
	deps := &Deps{Registry: metrics.NewRegistry()}

	if cfg.DatabaseURL != "" {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		deps.DB = db
	}
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		deps.Rdb = redis.NewClient(opt)
	}

	switch cfg.LedgerBackend {
	case config.BackendSQL:
		if err := database.AutoMigrate(deps.DB); err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("migrate ledger tables: %w", err)
		}
		deps.Ledger = ledger.New(&database.LedgerBackend{DB: deps.DB})
	case config.BackendRedis:
		deps.Ledger = ledger.New(redisledger.New(deps.Rdb, cfg.LedgerRedisPrefix))
	default:
		deps.Ledger = ledger.NewMemory()
	}

	if err := deps.Ledger.Ping(ctx); err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("ledger backend %s unreachable: %w", cfg.LedgerBackend, err)
	}
	log.Info().Str("backend", cfg.LedgerBackend).Msg("Ledger connected")
	return deps, nil
}

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateApp wires services, middleware and routes over deps.
func CreateApp(cfg *config.Config, deps *Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}, cfg.Env == "production"))
	app.Use(middleware.HealthMarker(deps.Rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	certs := &certificates.Service{Ledger: deps.Ledger}
	gw := &gateway.Service{
		Certificates: certs,
		Metrics:      metrics.NewLedgerMetrics(deps.Registry),
		MaxRetries:   cfg.SubmitMaxRetries,
	}

	hh := &healthhandler.Handlers{
		Rdb:            deps.Rdb,
		Ledger:         deps.Ledger,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	if deps.DB != nil {
		hh.DB = &gormDBPinger{db: deps.DB}
	}
	app.Get("/health/json", hh.JSON)
	app.Get("/health/reset", hh.Reset)
	app.Get("/health/errors", hh.Errors)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(deps.Registry)))

	lh := &ledgerhandler.Handlers{Gateway: gw}
	lg := app.Group("/api/v1/ledger")
	lg.Get("/functions", lh.Functions)
	lg.Post("/submit", lh.Submit)
	lg.Post("/evaluate", lh.Evaluate)

	ch := &certhandler.Handlers{Gateway: gw, Ingest: &ingest.Service{Gateway: gw}}
	cg := app.Group("/api/v1/certificates")
	cg.Post("/", ch.Create)
	cg.Get("/", ch.List)
	cg.Post("/ingest", ch.IngestAuthentication)
	cg.Get("/listings", ch.Listings)
	cg.Get("/:id", ch.Get)
	cg.Get("/:id/exists", ch.Exists)
	cg.Patch("/:id/auth-status", ch.UpdateAuthStatus)
	cg.Post("/:id/retire", ch.Retire)
	cg.Post("/:id/listing", ch.ListOnMarketplace)
	cg.Delete("/:id/listing", ch.Unlist)
	cg.Get("/:id/history", ch.History)
	cg.Get("/:id/history/verify", ch.VerifyHistory)

	return app
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
