package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/i474232898/stopweather/internal/config"
	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/store"
)

func TestBuildDSNPostgres(t *testing.T) {
	dsn, err := buildDSN(store.Postgres, config.DatabaseConfig{
		Host: "db.local", User: "postgres", Password: "it's secret", SSLMode: "disable",
	}, "bcweather")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"host=db.local", "port=5432", "dbname=bcweather", "user=postgres", `password='it\'s secret'`} {
		if !strings.Contains(dsn, want) {
			t.Errorf("expected %q in %q", want, dsn)
		}
	}
}

func TestBuildDSNSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.db")
	dsn, err := buildDSN(store.SQLite, config.DatabaseConfig{SQLitePath: path}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:"+path+"?") || !strings.Contains(dsn, "_foreign_keys=on") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	ctx := context.Background()
	conn, dialect, err := Open(ctx, config.DatabaseConfig{
		Driver:     "sqlite3",
		SQLitePath: filepath.Join(t.TempDir(), "app.db"),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = Close(conn) })

	if dialect != store.SQLite {
		t.Fatalf("unexpected dialect %q", dialect)
	}
	if err := store.Migrate(ctx, conn, dialect, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	locs, err := store.NewSQLStore(conn, dialect).ListLocations(ctx)
	if err != nil || len(locs) != 0 {
		t.Fatalf("expected empty Locations table, got %v %v", locs, err)
	}
}

func TestOpenUnknownDriverIsConfigFailure(t *testing.T) {
	_, _, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle"})
	if !failure.Is(err, failure.Config) {
		t.Fatalf("expected config failure, got %v", err)
	}
}

func TestEnsureDatabaseIgnoresSQLite(t *testing.T) {
	created, err := EnsureDatabase(context.Background(), config.DatabaseConfig{Driver: "sqlite3"})
	if err != nil || created {
		t.Fatalf("expected no-op, got %v %v", created, err)
	}
}
