package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"elis/backend/internal/app"
	"elis/backend/internal/config"
	"elis/backend/internal/logger"
)

func main() {
	// Initialize structured logger
	base := slog.NewJSONHandler(os.Stdout, nil)
	log := slog.New(logger.NewContextHandler(base))
	slog.SetDefault(log)

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Database, migrations, broker
	deps, err := app.Bootstrap(cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()
	defer deps.NSQProducer.Stop()
	slog.Info("bootstrap complete")

	// 3. Wire the application
	application, err := app.New(cfg, deps.DB, deps.NSQProducer, log)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Worker runtime
	if cfg.EnableWorker {
		if err := application.Runtime.Start(ctx); err != nil {
			slog.Error("failed to start worker runtime", "error", err)
			os.Exit(1)
		}
		defer application.Runtime.Stop()
	}

	// 5. HTTP server
	if cfg.EnableAPI {
		if err := application.Run(ctx); err != nil {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Worker-only process: block until signalled.
	<-ctx.Done()
	slog.Info("shutting down worker...")
}
