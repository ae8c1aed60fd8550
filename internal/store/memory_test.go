package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/i474232898/stopweather/internal/weather"
)

func TestMemoryStoreAddLocationsSkipsKnownStops(t *testing.T) {
	s := NewMemoryStore(0, 0)

	added := s.AddLocations(
		weather.Location{StopID: 2, StopName: "b"},
		weather.Location{StopID: 1, StopName: "a"},
	)
	if added != 2 {
		t.Fatalf("expected 2 added, got %d", added)
	}
	if added := s.AddLocations(weather.Location{StopID: 1, StopName: "dup"}); added != 0 {
		t.Fatalf("expected duplicate stop to be skipped, got %d added", added)
	}

	locs, err := s.ListLocations(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locs) != 2 || locs[0].StopID != 1 || locs[0].StopName != "a" {
		t.Fatalf("unexpected locations: %+v", locs)
	}
}

func TestMemoryStoreIdempotentPerSlot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, 0)
	slot := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	obs := weather.Observation{LocationID: 1, Provider: "openweathermap", CycleSlot: slot, FetchedAt: slot}
	written, err := s.SaveObservation(ctx, obs)
	if err != nil || !written {
		t.Fatalf("expected first save to write, got written=%v err=%v", written, err)
	}
	written, err = s.SaveObservation(ctx, obs)
	if err != nil || written {
		t.Fatalf("expected second save to be ignored, got written=%v err=%v", written, err)
	}

	has, _ := s.HasObservation(ctx, 1, "openweathermap", slot)
	if !has {
		t.Fatal("expected observation to be reported as stored")
	}
	has, _ = s.HasObservation(ctx, 1, "weatherbit", slot)
	if has {
		t.Fatal("expected other providers to be unaffected")
	}
}

func TestMemoryStoreLatestPerProvider(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, 0)
	base := time.Now().UTC().Truncate(time.Hour)

	for i, p := range []string{"openweathermap", "weatherbit", "openweathermap"} {
		ts := base.Add(time.Duration(i) * time.Hour)
		_, _ = s.SaveObservation(ctx, weather.Observation{
			LocationID: 5, Provider: p, CycleSlot: ts, FetchedAt: ts,
			Measurements: weather.Measurements{Temperature: weather.Float(float64(i))},
		})
	}

	latest, err := s.GetLatest(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected one observation per provider, got %d", len(latest))
	}
	if latest[0].Provider != "openweathermap" || *latest[0].Temperature != 2 {
		t.Fatalf("expected newest openweathermap reading, got %+v", latest[0])
	}

	if _, err := s.GetLatest(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreRetentionAndRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2, 0)
	base := time.Now().UTC().Truncate(time.Hour)

	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		_, _ = s.SaveObservation(ctx, weather.Observation{LocationID: 1, Provider: "p", CycleSlot: ts, FetchedAt: ts})
	}

	got, err := s.GetRange(ctx, 1, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected retention to keep 2 observations, got %d", len(got))
	}

	if _, err := s.GetRange(ctx, 1, base.Add(2*time.Hour), base.Add(3*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty range, got %v", err)
	}
}
