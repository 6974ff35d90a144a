package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/slickofficials/autoposter/internal/app"
	"github.com/slickofficials/autoposter/internal/config"
	"github.com/slickofficials/autoposter/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "autoposter start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close(log)

	log.InfoObj("autoposter starting", "config_meta", map[string]any{
		"app_name":     cfg.AppName,
		"env":          cfg.Env,
		"storage_type": cfg.StorageType,
		"http_addr":    cfg.HTTPAddr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.NewPipeline(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize pipeline", "error", err.Error())
		return err
	}

	if err := pipeline.Run(ctx); err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	return nil
}
