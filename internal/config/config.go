package config

import "time"

// Queue backends selectable through task.queue.
const (
	QueueMemory   = "memory"
	QueueDatabase = "database"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Mail     MailConfig     `mapstructure:"mail"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// LongPollTimeout caps the wait parameter of the notifications endpoint.
	LongPollTimeout time.Duration `mapstructure:"long_poll_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// URLs starting with postgres:// or postgresql:// select the pgx driver;
// anything else is treated as a SQLite path (an optional sqlite:// prefix is stripped).
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// TaskConfig controls the background task pipeline.
type TaskConfig struct {
	WorkerCount int    `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize   int    `mapstructure:"queue_size" validate:"gt=0"`
	Queue       string `mapstructure:"queue" validate:"required,oneof=memory database"`
	// EmbeddedWorker runs the worker pool inside the API server process.
	EmbeddedWorker bool `mapstructure:"embedded_worker"`

	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	Lease        time.Duration `mapstructure:"lease" validate:"gt=0"`
	StuckTaskAge time.Duration `mapstructure:"stuck_task_age" validate:"gt=0"`
	// MaintenanceSchedule is a cron spec for the recovery sweep.
	MaintenanceSchedule string `mapstructure:"maintenance_schedule" validate:"required"`

	ExportItemDelay time.Duration `mapstructure:"export_item_delay" validate:"gte=0"`
	ExampleTick     time.Duration `mapstructure:"example_tick" validate:"gte=0"`
}

// MailConfig configures outbound mail. An empty Host logs messages instead of sending them.
type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0,lt=65536"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from" validate:"required,email"`
}
