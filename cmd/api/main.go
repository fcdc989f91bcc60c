package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boneboard-backend/bootstrap"
	"boneboard-backend/internal/config"
	"boneboard-backend/internal/pkg/logger"

	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	logger.Setup(cfg.LogLevel, cfg.Env)

	rt, err := bootstrap.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap")
	}
	defer rt.Close()

	if err := rt.PingWithTimeout(); err != nil {
		log.Fatal().Err(err).Msg("connection check failed")
	}
	log.Info().Bool("redis", rt.Redis != nil).Msg("storage connected")

	if cfg.SweepEnabled {
		if err := rt.Scheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("scheduler start")
		}
		defer rt.Scheduler.Stop()
	} else {
		log.Info().Msg("sweep scheduler disabled")
	}

	app := rt.App()
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msgf("server running at http://localhost:%s", cfg.Port)
		errCh <- app.Listen(":" + cfg.Port)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}
}
