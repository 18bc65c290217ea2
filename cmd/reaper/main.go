// Command reaper runs a single expiry sweep and exits. It is meant for cron
// style scheduling when the API runs with REAPER_ENABLED=false.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/congo-pay/escrowledger/internal/config"
	"github.com/congo-pay/escrowledger/internal/infra"
	"github.com/congo-pay/escrowledger/internal/logging"
	"github.com/congo-pay/escrowledger/internal/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.AppName+"-reaper", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	deps := routes.Deps{Cfg: cfg, DB: db, Logger: logger}
	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer cache.Close()
		deps.Cache = cache
	}

	services, err := routes.NewServices(deps)
	if err != nil {
		logger.Error("build services", "error", err)
		os.Exit(1)
	}

	res, err := services.Reaper.Sweep(ctx)
	if err != nil {
		logger.Error("sweep failed", "error", err)
		os.Exit(1)
	}
	logger.Info("sweep complete",
		"scanned", res.Scanned,
		"refunded", res.Refunded,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	if res.Failed > 0 {
		os.Exit(2)
	}
}
