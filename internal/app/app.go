// Package app builds the components both binaries share from an AppConfig.
package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/i474232898/stopweather/internal/config"
	"github.com/i474232898/stopweather/internal/csvdata"
	"github.com/i474232898/stopweather/internal/db"
	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/publish"
	"github.com/i474232898/stopweather/internal/store"
	"github.com/i474232898/stopweather/internal/weather"
	"github.com/i474232898/stopweather/internal/weather/providers"
)

const connectTimeout = 10 * time.Second

// LoadStops reads a stop export from disk.
func LoadStops(path string) ([]weather.Location, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.New(failure.Config, "open location data", err)
	}
	defer f.Close()
	return csvdata.ReadStops(f)
}

// OpenStore returns the SQL store when a database driver is configured, migrating it first.
// Otherwise stops are loaded from LocationData into an in-memory store.
func OpenStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (weather.Store, func() error, error) {
	if cfg.Database.Driver == "" {
		mem := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)
		if cfg.LocationData != "" {
			stops, err := LoadStops(cfg.LocationData)
			if err != nil {
				return nil, nil, err
			}
			added := mem.AddLocations(stops...)
			logger.Info("loaded stops into memory", "path", cfg.LocationData, "stops", added)
		}
		return mem, func() error { return nil }, nil
	}

	conn, dialect, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx, conn, dialect, logger); err != nil {
		_ = db.Close(conn)
		return nil, nil, err
	}
	logger.Info("database ready", "driver", dialect)
	return store.NewSQLStore(conn, dialect), func() error { return db.Close(conn) }, nil
}

// HTTPConfig is the provider transport: one shared client, retries and breaker as configured.
func HTTPConfig(cfg *config.AppConfig) providers.HTTPClientConfig {
	httpCfg := providers.DefaultHTTPConfig(&http.Client{Timeout: cfg.HTTPTimeout})
	httpCfg.Backoff.MaxRetries = cfg.MaxRetries
	httpCfg.CircuitFailures = cfg.CircuitFailures
	return httpCfg
}

// Providers builds every configured provider in order.
func Providers(cfg *config.AppConfig) ([]weather.Provider, error) {
	specs := make([]providers.Spec, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		specs = append(specs, p.Spec())
	}
	return providers.NewAll(specs, HTTPConfig(cfg))
}

// Publishers builds the enabled sinks. The returned func closes them.
func Publishers(ctx context.Context, cfg *config.AppConfig, stdout io.Writer, logger *slog.Logger) ([]weather.Publisher, func(), error) {
	var (
		pubs    []weather.Publisher
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Print {
		pubs = append(pubs, publish.NewPrinter(stdout, nil))
	}

	if cfg.MQTT.Broker != "" {
		m := publish.NewMQTT(cfg.MQTT, logger)
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := m.Connect(cctx)
		cancel()
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		pubs = append(pubs, m)
		closers = append(closers, m.Close)
	}

	if cfg.Influx.Addr != "" {
		in, err := publish.NewInflux(cfg.Influx, cfg.HTTPTimeout)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		if err := in.Ping(connectTimeout); err != nil {
			logger.Warn("influxdb not reachable yet", "addr", cfg.Influx.Addr, "error", err)
		}
		pubs = append(pubs, in)
		closers = append(closers, func() { _ = in.Close() })
	}

	for _, p := range pubs {
		logger.Info("publisher enabled", "publisher", p.Name())
	}
	return pubs, closeAll, nil
}
