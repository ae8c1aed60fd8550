// Package geocode looks up coordinates for stops exported without a position.
package geocode

import (
	"context"
	"log/slog"
	"time"

	"github.com/i474232898/stopweather/internal/config"
	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// Geocoder resolves a stop to coordinates. found is false when the service has no match.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, loc weather.Location) (lat, lon float64, found bool, err error)
}

// New builds the geocoder selected in cfg.
func New(cfg config.GeocoderConfig, timeout time.Duration) (Geocoder, error) {
	switch cfg.Provider {
	case "", "nominatim":
		return NewNominatim(cfg.BaseURL, cfg.UserAgent, timeout), nil
	case "google":
		return NewGoogle(cfg.APIKey)
	default:
		return nil, failure.Newf(failure.Config, "geocoder", "unknown geocoder %q", cfg.Provider)
	}
}

// Result counts what FillMissing did.
type Result struct {
	Attempted int
	Filled    int
	NotFound  int
	Failed    int
}

// missing reports whether both coordinates are zero. Stops with only one zero
// coordinate are left alone.
func missing(loc weather.Location) bool {
	return loc.Latitude == 0 && loc.Longitude == 0
}

// FillMissing geocodes every stop whose coordinates are both zero and writes the
// result back into stops. Stops the geocoder cannot find keep zero coordinates.
// Requests are spaced by pace. Only context cancellation stops the run early.
func FillMissing(ctx context.Context, g Geocoder, stops []weather.Location, pace time.Duration, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("geocoder", g.Name())

	var res Result
	for i := range stops {
		loc := &stops[i]
		if !missing(*loc) {
			continue
		}

		if res.Attempted > 0 && pace > 0 {
			t := time.NewTimer(pace)
			select {
			case <-ctx.Done():
				t.Stop()
				return res, ctx.Err()
			case <-t.C:
			}
		}
		res.Attempted++

		lat, lon, found, err := g.Geocode(ctx, *loc)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			kind, _ := failure.KindOf(err)
			log.Error("failed to geocode stop",
				"stop_id", loc.StopID, "stop", loc.Label(), "kind", kind.String(), "error", err)
			continue
		}
		if !found {
			res.NotFound++
			log.Warn("no coordinates found", "stop_id", loc.StopID, "stop", loc.Label())
			continue
		}

		loc.Latitude, loc.Longitude = lat, lon
		res.Filled++
		log.Info("fetched missing coordinates",
			"stop_id", loc.StopID, "stop", loc.Label(), "lat", lat, "lon", lon)
	}
	return res, nil
}
