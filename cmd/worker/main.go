// Package main runs a standalone task worker. It consumes the database-backed
// queue, so any number of workers can run beside the API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/microblog/internal/app"
	"github.com/phrazzld/microblog/internal/config"
	"github.com/phrazzld/microblog/internal/platform/database"
	"github.com/phrazzld/microblog/internal/platform/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: ./config.yaml if present)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Task.Queue != config.QueueDatabase {
		return errors.New("standalone worker requires task.queue=database")
	}

	log, err := logger.Setup(logger.LoggerConfig{Level: cfg.Server.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.URL, database.Options{MaxOpenConns: cfg.Database.MaxOpenConns}, log)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, db, database.MigrateUp, log); err != nil {
		_ = db.Close()
		return err
	}

	application, err := app.New(cfg, log, db, app.Options{RunWorker: true})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize worker: %w", err)
	}
	defer application.Close()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	log.Info("worker running", "worker_count", cfg.Task.WorkerCount)
	<-ctx.Done()
	log.Info("worker shutting down")
	return nil
}
