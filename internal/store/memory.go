package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/stopweather/internal/weather"
)

var (
	// ErrNotFound is returned when no data is available for a given location.
	ErrNotFound = errors.New("no weather data for location")
)

// ObservationHistory holds a time-ordered list of observations for a location.
type ObservationHistory struct {
	Observations []weather.Observation
}

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
type MemoryStore struct {
	mu sync.RWMutex

	locations []weather.Location

	// key: location key, value: history
	data   map[string]*ObservationHistory
	nextID int64

	// retention configuration
	maxHistory int           // max number of observations per location
	maxAge     time.Duration // optional max age for observations
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*ObservationHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// AddLocations registers stops; stop ids already present are left untouched.
// It returns how many were added.
func (s *MemoryStore) AddLocations(locs ...weather.Location) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[int64]struct{}, len(s.locations))
	for _, l := range s.locations {
		existing[l.StopID] = struct{}{}
	}

	added := 0
	for _, l := range locs {
		if _, ok := existing[l.StopID]; ok {
			continue
		}
		existing[l.StopID] = struct{}{}
		s.locations = append(s.locations, l)
		added++
	}
	return added
}

// ListLocations returns all stops ordered by stop id.
func (s *MemoryStore) ListLocations(_ context.Context) ([]weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.Location, len(s.locations))
	copy(out, s.locations)
	sort.Slice(out, func(i, j int) bool { return out[i].StopID < out[j].StopID })
	return out, nil
}

// SaveObservation appends a new observation for a location and enforces retention.
func (s *MemoryStore) SaveObservation(_ context.Context, obs weather.Observation) (bool, error) {
	key := locationKey(obs.LocationID)

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[key]
	if !ok {
		history = &ObservationHistory{}
		s.data[key] = history
	}

	for _, o := range history.Observations {
		if o.Provider == obs.Provider && o.CycleSlot.Equal(obs.CycleSlot) {
			return false, nil
		}
	}

	s.nextID++
	obs.ID = s.nextID
	history.Observations = append(history.Observations, obs)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Observations) > s.maxHistory {
		over := len(history.Observations) - s.maxHistory
		history.Observations = history.Observations[over:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.Observations); i++ {
			if !history.Observations[i].FetchedAt.Before(cutoff) {
				break
			}
		}
		if i > 0 && i < len(history.Observations) {
			history.Observations = history.Observations[i:]
		}
	}
	return true, nil
}

// HasObservation reports whether the provider already has a row for the slot.
func (s *MemoryStore) HasObservation(_ context.Context, locationID int64, provider string, slot time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[locationKey(locationID)]
	if !ok {
		return false, nil
	}
	for _, o := range history.Observations {
		if o.Provider == provider && o.CycleSlot.Equal(slot) {
			return true, nil
		}
	}
	return false, nil
}

// GetLatest returns the most recent observation of each provider for a location.
func (s *MemoryStore) GetLatest(_ context.Context, locationID int64) ([]weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[locationKey(locationID)]
	if !ok || len(history.Observations) == 0 {
		return nil, ErrNotFound
	}

	seen := make(map[string]bool)
	var out []weather.Observation
	for i := len(history.Observations) - 1; i >= 0; i-- {
		o := history.Observations[i]
		if seen[o.Provider] {
			continue
		}
		seen[o.Provider] = true
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

// GetRange returns all observations for a location fetched between from and to (inclusive).
func (s *MemoryStore) GetRange(_ context.Context, locationID int64, from, to time.Time) ([]weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[locationKey(locationID)]
	if !ok || len(history.Observations) == 0 {
		return nil, ErrNotFound
	}

	var result []weather.Observation
	for _, o := range history.Observations {
		if !o.FetchedAt.Before(from) && !o.FetchedAt.After(to) {
			result = append(result, o)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

func locationKey(id int64) string {
	return weather.Location{StopID: id}.Key()
}
