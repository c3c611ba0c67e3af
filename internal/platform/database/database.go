package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Driver names as registered with database/sql.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Options tunes the connection pool. Zero values pick defaults.
type Options struct {
	MaxOpenConns int
	PingTimeout  time.Duration
}

// Open connects to the database named by rawURL and verifies the connection.
// postgres:// and postgresql:// URLs use pgx; anything else is a SQLite path,
// with an optional sqlite:// prefix and ":memory:" for a private in-memory database.
func Open(ctx context.Context, rawURL string, opts Options, logger *slog.Logger) (*sqlx.DB, error) {
	driver, dsn := resolveDSN(rawURL)

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	switch driver {
	case DriverSQLite:
		// SQLite serializes writers; a single connection keeps transactions
		// from tripping over SQLITE_BUSY and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	default:
		maxOpen := opts.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 10
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", MapError(err))
	}

	logger.Info("database connection established",
		"driver", driver,
		"url", MaskURL(rawURL))

	return db, nil
}

// IsPostgres reports whether db was opened with the Postgres driver.
func IsPostgres(db *sqlx.DB) bool {
	return db.DriverName() == DriverPostgres
}

func resolveDSN(rawURL string) (driver, dsn string) {
	if strings.HasPrefix(rawURL, "postgres://") || strings.HasPrefix(rawURL, "postgresql://") {
		return DriverPostgres, rawURL
	}

	path := strings.TrimPrefix(rawURL, "sqlite://")
	if path == "" || path == ":memory:" {
		return DriverSQLite, "file::memory:?_pragma=foreign_keys(1)"
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	// Immediate transactions take the write lock at BEGIN, so read-then-write
	// transactions from separate processes queue on busy_timeout instead of
	// failing with SQLITE_BUSY when both try to upgrade.
	return DriverSQLite, "file:" + path + sep +
		"_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// MaskURL masks the password in a database URL for safe logging.
func MaskURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url"
	}

	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "****")
		}
		return parsed.String()
	}

	return rawURL
}
