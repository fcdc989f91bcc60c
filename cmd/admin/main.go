// Command boneboard-admin runs operator tasks against the BoneBoard database:
// migrations, sweeps, ledger reconciliation and repair, and cascading deletes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"boneboard-backend/bootstrap"
	"boneboard-backend/internal/config"
	"boneboard-backend/internal/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openRuntime).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openRuntime loads configuration from the environment and opens storage.
func openRuntime() (*bootstrap.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.LogLevel, cfg.Env)
	return bootstrap.Open(cfg)
}
