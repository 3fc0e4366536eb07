package bootstrap

import (
	"context"
	"os"

	"greencredits-ledger/internal/application/certificates"
	"greencredits-ledger/internal/config"
	"greencredits-ledger/internal/interfaces/router"
	"greencredits-ledger/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const serviceName = "greencredits-ledger"

// New loads config, connects the ledger and builds the Fiber app. The api
// handler imports this package, not internal. Callers own deps and must
// close it.
func New(ctx context.Context) (*fiber.App, *config.Config, *router.Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Setup(serviceName, cfg.LogLevel, cfg.LogFormat, os.Stdout)

	deps, err := router.OpenDeps(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if deps.Rdb != nil {
		if err := deps.Rdb.Ping(ctx).Err(); err != nil {
			_ = deps.Close()
			return nil, nil, nil, err
		}
		log.Info().Msg("Redis connected")
	}
	if deps.DB != nil {
		log.Info().Msg("Database connected")
	}

	certs := &certificates.Service{Ledger: deps.Ledger}
	if err := certs.InitLedger(ctx); err != nil {
		_ = deps.Close()
		return nil, nil, nil, err
	}
	return router.CreateApp(cfg, deps), cfg, deps, nil
}
