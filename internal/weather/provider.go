package weather

import (
	"context"
	"encoding/json"
	"time"
)

// Reading is what a provider returns for one coordinate pair.
type Reading struct {
	ProviderName string
	FetchedAt    time.Time

	// Raw is the full response body, Display the document print mode flattens.
	Raw     json.RawMessage
	Display json.RawMessage

	Measurements
}

// Provider abstracts a weather data source (e.g. OpenWeatherMap, Weatherbit, Open-Meteo).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, lat, lon float64) (Reading, error)
}

// Store is the contract the in-memory store and the SQL store satisfy.
type Store interface {
	ListLocations(ctx context.Context) ([]Location, error)

	// SaveObservation inserts obs unless the same location, provider and cycle slot
	// is already stored; the bool reports whether a row was written.
	SaveObservation(ctx context.Context, obs Observation) (bool, error)
	HasObservation(ctx context.Context, locationID int64, provider string, slot time.Time) (bool, error)

	GetLatest(ctx context.Context, locationID int64) ([]Observation, error)
	GetRange(ctx context.Context, locationID int64, from, to time.Time) ([]Observation, error)
}

// Publisher receives every stored observation. Failures are logged, never fatal.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, loc Location, obs Observation) error
}
