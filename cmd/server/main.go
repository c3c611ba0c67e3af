// Package main runs the microblog API server. With task.embedded_worker set
// it also runs the background task workers in the same process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/microblog/internal/app"
	"github.com/phrazzld/microblog/internal/config"
	"github.com/phrazzld/microblog/internal/platform/database"
	"github.com/phrazzld/microblog/internal/platform/logger"
	"github.com/phrazzld/microblog/internal/service/auth"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: ./config.yaml if present)")
	migrate := flag.String("migrate", "", "run a migration command (up, down, status) and exit")
	issueToken := flag.String("issue-token", "", "print an access token for the given user ID and exit")
	flag.Parse()

	if err := run(*configPath, *migrate, *issueToken); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath, migrate, issueToken string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logger.Setup(logger.LoggerConfig{Level: cfg.Server.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	if issueToken != "" {
		return printToken(cfg, issueToken)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.URL, database.Options{MaxOpenConns: cfg.Database.MaxOpenConns}, log)
	if err != nil {
		return err
	}

	if migrate != "" {
		defer db.Close()
		return database.Migrate(ctx, db, migrate, log)
	}

	if err := database.Migrate(ctx, db, database.MigrateUp, log); err != nil {
		_ = db.Close()
		return err
	}

	return serve(ctx, cfg, log, db)
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger, db *sqlx.DB) error {
	application, err := app.New(cfg, log, db, app.Options{RunWorker: cfg.Task.EmbeddedWorker})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task pipeline: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: application.Handler(),
	}
	return runHTTPServer(ctx, server, cfg.Server.ShutdownTimeout, log)
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func printToken(cfg *config.Config, rawUserID string) error {
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return errors.New("issue-token requires a valid user UUID")
	}

	svc, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to create JWT service: %w", err)
	}
	token, err := svc.GenerateToken(context.Background(), userID)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
