package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MICROBLOG"

// Load configuration from environment variables and an optional config.yaml
// in the working directory. Environment variables take precedence over values
// from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFile loads configuration from the YAML file at path, still letting
// environment variables override it.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	// Every key needs a default so AutomaticEnv can resolve it during Unmarshal.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.long_poll_timeout", "25s")

	v.SetDefault("database.url", "sqlite://microblog.db")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.queue", QueueMemory)
	v.SetDefault("task.embedded_worker", true)
	v.SetDefault("task.poll_interval", "500ms")
	v.SetDefault("task.lease", "30s")
	v.SetDefault("task.stuck_task_age", "10m")
	v.SetDefault("task.maintenance_schedule", "@every 5m")
	v.SetDefault("task.export_item_delay", "1s")
	v.SetDefault("task.example_tick", "1s")

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 25)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "noreply@microblog.local")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags and the cross-field rules between them.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Task.Queue == QueueMemory && !c.Task.EmbeddedWorker {
		return errors.New("config validation failed: task.queue=memory requires task.embedded_worker")
	}

	return nil
}

// IsPostgres reports whether the database URL selects the Postgres driver.
func (d DatabaseConfig) IsPostgres() bool {
	return strings.HasPrefix(d.URL, "postgres://") || strings.HasPrefix(d.URL, "postgresql://")
}
