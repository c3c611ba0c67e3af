// Package app wires configuration, storage, the task pipeline and the HTTP
// layer into one Application shared by the server and worker commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/microblog/internal/api"
	"github.com/phrazzld/microblog/internal/api/middleware"
	"github.com/phrazzld/microblog/internal/config"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/events"
	"github.com/phrazzld/microblog/internal/feed"
	"github.com/phrazzld/microblog/internal/platform/database"
	"github.com/phrazzld/microblog/internal/platform/mail"
	"github.com/phrazzld/microblog/internal/service/auth"
	"github.com/phrazzld/microblog/internal/task"
)

// ErrMemoryQueueNeedsWorker is returned when the in-memory queue is
// configured without a worker in the same process.
var ErrMemoryQueueNeedsWorker = errors.New("task.queue=memory requires an embedded worker")

// Options selects which parts of the pipeline run in this process.
type Options struct {
	// RunWorker starts the task runner consuming the queue.
	RunWorker bool
	// Mailer overrides the sender built from configuration.
	Mailer mail.Sender
}

// Application holds every long-lived dependency of a process.
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *sqlx.DB

	Users         *database.UserStore
	Posts         *database.PostStore
	Records       *database.TaskRecordStore
	Notifications *database.NotificationStore

	Feed       *feed.Feed
	Broker     *events.Broker
	Registry   *task.Registry
	Queue      task.Queue
	Dispatcher *task.Dispatcher
	Runner     *task.Runner
	JWT        auth.JWTService
	Mailer     mail.Sender

	durable *task.DurableQueue
}

// New builds an Application over an open, migrated database.
func New(cfg *config.Config, logger *slog.Logger, db *sqlx.DB, opts Options) (*Application, error) {
	if cfg.Task.Queue == config.QueueMemory && !opts.RunWorker {
		return nil, ErrMemoryQueueNeedsWorker
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Users:         database.NewUserStore(db),
		Posts:         database.NewPostStore(db),
		Records:       database.NewTaskRecordStore(db),
		Notifications: database.NewNotificationStore(db),
		Broker:        events.NewBroker(),
		Mailer:        opts.Mailer,
	}

	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(app.Broker)
	app.Feed = feed.New(app.Notifications, logger, feed.WithEmitter(emitter))

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}
	app.JWT = jwtService

	if app.Mailer == nil {
		app.Mailer = mail.NewSender(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}, logger)
	}

	if app.Registry, err = newRegistry(cfg.Task, app); err != nil {
		return nil, err
	}

	switch cfg.Task.Queue {
	case config.QueueDatabase:
		app.durable = task.NewDurableQueue(database.NewQueueStore(db), task.DurableQueueConfig{
			WorkerID:     workerID(),
			PollInterval: cfg.Task.PollInterval,
			Lease:        cfg.Task.Lease,
		}, logger)
		app.Queue = app.durable
	default:
		app.Queue = task.NewTaskQueue(cfg.Task.QueueSize, logger)
	}

	app.Dispatcher, err = task.NewDispatcher(app.Registry, app.Users, app.Records, app.Queue, app.Feed, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	if opts.RunWorker {
		app.Runner, err = task.NewRunner(app.Registry, app.Records, app.Feed, app.Queue, task.RunnerConfig{
			WorkerCount:      cfg.Task.WorkerCount,
			StuckTaskAge:     cfg.Task.StuckTaskAge,
			RecoverySchedule: cfg.Task.MaintenanceSchedule,
			RenewInterval:    cfg.Task.Lease / 3,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create task runner: %w", err)
		}
	}

	return app, nil
}

func newRegistry(cfg config.TaskConfig, app *Application) (*task.Registry, error) {
	export, err := task.NewExportPostsTask(app.Users, app.Posts, app.Mailer, cfg.ExportItemDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to create export task: %w", err)
	}

	registry := task.NewRegistry()
	for kind, h := range map[string]task.Handler{
		domain.TaskKindExportPosts: export,
		domain.TaskKindExample:     task.NewExampleTask(cfg.ExampleTick),
	} {
		if err := registry.Register(kind, h); err != nil {
			return nil, fmt.Errorf("failed to register task %s: %w", kind, err)
		}
	}
	return registry, nil
}

// Start begins consuming the queue if this process runs a worker.
func (a *Application) Start(ctx context.Context) error {
	if a.Runner == nil {
		return nil
	}
	if a.durable != nil {
		if err := a.durable.Start(); err != nil {
			return fmt.Errorf("failed to start queue: %w", err)
		}
	}
	return a.Runner.Start(ctx)
}

// Handler returns the HTTP routes.
func (a *Application) Handler() http.Handler {
	return api.NewRouter(api.RouterDeps{
		Auth:  middleware.NewAuthMiddleware(a.JWT),
		Tasks: api.NewTaskHandler(a.Dispatcher),
		Notifications: api.NewNotificationHandler(a.Feed, a.Broker, api.NotificationHandlerConfig{
			MaxWait:         a.Config.Server.LongPollTimeout,
			RecheckInterval: a.Config.Task.PollInterval,
		}),
		Health: api.NewHealthHandler(a.DB),
		Logger: a.Logger,
	})
}

// Close stops the worker and releases the queue and database.
func (a *Application) Close() {
	if a.Runner != nil {
		a.Runner.Stop()
	}
	a.Queue.Close()
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("failed to close database", "error", err)
	}
}

// workerID names this process for queue lease ownership.
func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
