package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/stopweather/internal/config"
	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/store"
)

// Open connects to the configured database and verifies it answers.
// Any error is a failure.Database, except an unsupported driver which is failure.Config.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, store.Dialect, error) {
	dialect, err := store.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	dsn, err := buildDSN(dialect, cfg, cfg.Name)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, "", failure.New(failure.Database, "db open", err)
	}

	// SQLite is typically best with low concurrency.
	maxOpen := cfg.MaxOpenConns
	if dialect == store.SQLite {
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if cfg.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// Validate connectivity early
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", failure.New(failure.Database, "db ping", err)
	}

	return db, dialect, nil
}

func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// EnsureDatabase creates the configured PostgreSQL database when it does not exist yet,
// connecting through the "postgres" maintenance database. It reports whether it created it.
// SQLite files are created on open, so other drivers are a no-op.
func EnsureDatabase(ctx context.Context, cfg config.DatabaseConfig) (bool, error) {
	if cfg.Driver != string(store.Postgres) {
		return false, nil
	}

	dsn, err := buildDSN(store.Postgres, cfg, "postgres")
	if err != nil {
		return false, err
	}
	db, err := sql.Open(string(store.Postgres), dsn)
	if err != nil {
		return false, failure.New(failure.Database, "db open", err)
	}
	defer db.Close()

	var exists bool
	err = db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, cfg.Name,
	).Scan(&exists)
	if err != nil {
		return false, failure.New(failure.Database, "check database", err)
	}
	if exists {
		return false, nil
	}

	// CREATE DATABASE cannot take a bind parameter.
	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(cfg.Name)); err != nil {
		return false, failure.New(failure.Database, "create database", err)
	}
	return true, nil
}

func buildDSN(d store.Dialect, cfg config.DatabaseConfig, dbName string) (string, error) {
	switch d {
	case store.Postgres:
		port := cfg.Port
		if port == 0 {
			port = 5432
		}
		params := []string{
			"host=" + quoteDSN(cfg.Host),
			"port=" + strconv.Itoa(port),
			"dbname=" + quoteDSN(dbName),
			"sslmode=" + quoteDSN(cfg.SSLMode),
		}
		if cfg.User != "" {
			params = append(params, "user="+quoteDSN(cfg.User))
		}
		if cfg.Password != "" {
			params = append(params, "password="+quoteDSN(cfg.Password))
		}
		return strings.Join(params, " "), nil

	case store.SQLite:
		path := cfg.SQLitePath
		if path == ":memory:" {
			return "file::memory:?_foreign_keys=on", nil
		}
		// Ensure directory exists for file-backed sqlite db
		dir := filepath.Dir(strings.TrimPrefix(path, "file:"))
		if dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", failure.New(failure.Database, "mkdir "+dir, err)
			}
		}

		// foreign_keys=on enforces the WeatherData -> Locations reference,
		// busy_timeout and WAL help concurrent readers such as the HTTP API.
		params := []string{
			"_foreign_keys=on",
			"_busy_timeout=5000",
			"_journal_mode=WAL",
		}
		if strings.HasPrefix(path, "file:") {
			sep := "?"
			if strings.Contains(path, "?") {
				sep = "&"
			}
			return path + sep + strings.Join(params, "&"), nil
		}
		return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil

	default:
		return "", failure.Newf(failure.Config, "db driver", "unsupported driver %q", d)
	}
}

// quoteDSN quotes a libpq key/value connection parameter.
func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
