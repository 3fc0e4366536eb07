package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"greencredits-ledger/bootstrap"

	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cfg, deps, err := bootstrap.New(ctx)
	if err != nil {
		panic("app create: " + err.Error())
	}
	defer func() {
		if err := deps.Close(); err != nil {
			log.Error().Err(err).Msg("Close connections")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", "http://localhost:"+cfg.Port).
			Str("health", "http://localhost:"+cfg.Port+"/health/json").
			Msg("Server running")
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("Shutdown")
		}
	}
}
