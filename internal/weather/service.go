package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/stopweather/internal/failure"
)

// ErrNoCoordinates is returned for stops whose latitude or longitude is zero.
var ErrNoCoordinates = errors.New("latitude or longitude is zero")

// OutcomeStatus is the result of one (stop, provider) pair in a cycle.
type OutcomeStatus string

const (
	StatusStored    OutcomeStatus = "stored"
	StatusDuplicate OutcomeStatus = "duplicate"
	StatusSkipped   OutcomeStatus = "skipped"
	StatusFailed    OutcomeStatus = "failed"
)

// Outcome records what happened to one stop for one provider.
type Outcome struct {
	Location Location      `json:"location"`
	Provider string        `json:"provider,omitempty"`
	Status   OutcomeStatus `json:"status"`
	Err      error         `json:"-"`
}

// CycleReport summarizes one polling cycle.
type CycleReport struct {
	ID         uuid.UUID `json:"id"`
	Slot       time.Time `json:"slot"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Outcomes   []Outcome `json:"-"`
}

func (r CycleReport) count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

func (r CycleReport) Stored() int    { return r.count(StatusStored) }
func (r CycleReport) Failed() int    { return r.count(StatusFailed) }
func (r CycleReport) Skipped() int   { return r.count(StatusSkipped) }
func (r CycleReport) Duplicate() int { return r.count(StatusDuplicate) }

// Service runs polling cycles: list stops, fetch each provider, store, publish.
type Service struct {
	store      Store
	providers  []Provider
	publishers []Publisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a new Service.
func NewService(store Store, providers []Provider, logger *slog.Logger, publishers ...Publisher) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		providers:  providers,
		publishers: publishers,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunCycle polls every stop once for the given slot. Per-stop failures are logged and
// recorded in the report; only a failure to list stops aborts the cycle.
// Running the same slot again only fetches what is not stored yet.
func (s *Service) RunCycle(ctx context.Context, slot time.Time) (CycleReport, error) {
	report := CycleReport{
		ID:        uuid.New(),
		Slot:      slot.UTC(),
		StartedAt: s.now(),
	}
	log := s.logger.With("cycle", report.ID.String(), "slot", report.Slot)

	if len(s.providers) == 0 {
		return report, failure.Newf(failure.Config, "run cycle", "no weather providers configured")
	}

	locations, err := s.store.ListLocations(ctx)
	if err != nil {
		if _, tagged := failure.KindOf(err); !tagged {
			err = failure.New(failure.Database, "list locations", err)
		}
		log.Error("failed to fetch locations", "error", err)
		return report, err
	}
	log.Info("polling cycle started", "locations", len(locations), "providers", len(s.providers))

	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = s.now()
			return report, fmt.Errorf("cycle interrupted: %w", err)
		}

		if !loc.HasCoordinates() {
			log.Info("ignoring stop: latitude or longitude is zero",
				"stop_id", loc.StopID, "stop", loc.Label())
			report.Outcomes = append(report.Outcomes, Outcome{Location: loc, Status: StatusSkipped, Err: ErrNoCoordinates})
			continue
		}

		for _, p := range s.providers {
			report.Outcomes = append(report.Outcomes, s.collect(ctx, log, loc, p, report.Slot))
		}
	}

	report.FinishedAt = s.now()
	log.Info("polling cycle finished",
		"stored", report.Stored(),
		"failed", report.Failed(),
		"skipped", report.Skipped(),
		"duplicate", report.Duplicate(),
		"took", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

func (s *Service) collect(ctx context.Context, log *slog.Logger, loc Location, p Provider, slot time.Time) Outcome {
	out := Outcome{Location: loc, Provider: p.Name()}

	done, err := s.store.HasObservation(ctx, loc.StopID, p.Name(), slot)
	if err != nil {
		out.Status, out.Err = StatusFailed, failure.New(failure.Database, "check observation", err)
		logFailure(log, "failed to check stored observation", loc, p.Name(), out.Err)
		return out
	}
	if done {
		out.Status = StatusDuplicate
		return out
	}

	obs, err := s.Observe(ctx, loc, p, slot)
	if err != nil {
		out.Status, out.Err = StatusFailed, err
		logFailure(log, "failed to fetch weather", loc, p.Name(), err)
		return out
	}

	written, err := s.store.SaveObservation(ctx, obs)
	if err != nil {
		if _, tagged := failure.KindOf(err); !tagged {
			err = failure.New(failure.Database, "insert observation", err)
		}
		out.Status, out.Err = StatusFailed, err
		logFailure(log, "failed to store observation", loc, p.Name(), err)
		return out
	}
	if !written {
		out.Status = StatusDuplicate
		return out
	}

	log.Debug("weather data stored", "stop_id", loc.StopID, "stop", loc.Label(), "provider", p.Name())
	s.publish(ctx, log, loc, obs)
	out.Status = StatusStored
	return out
}

// Observe fetches one provider for one stop and turns the reading into an Observation.
func (s *Service) Observe(ctx context.Context, loc Location, p Provider, slot time.Time) (Observation, error) {
	if !loc.HasCoordinates() {
		return Observation{}, failure.New(failure.Config, p.Name(), ErrNoCoordinates)
	}

	r, err := p.Fetch(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		return Observation{}, err
	}

	fetchedAt := r.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = s.now()
	}

	return Observation{
		LocationID:   loc.StopID,
		Provider:     p.Name(),
		CycleSlot:    slot.UTC(),
		FetchedAt:    fetchedAt.UTC().Truncate(time.Second),
		Measurements: r.Measurements,
		Raw:          r.Raw,
		Display:      r.Display,
	}, nil
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, loc Location, obs Observation) {
	for _, pub := range s.publishers {
		if err := pub.Publish(ctx, loc, obs); err != nil {
			log.Warn("failed to publish observation",
				"publisher", pub.Name(), "stop_id", loc.StopID, "provider", obs.Provider, "error", err)
		}
	}
}

func logFailure(log *slog.Logger, msg string, loc Location, provider string, err error) {
	kind, _ := failure.KindOf(err)
	log.Error(msg,
		"stop_id", loc.StopID,
		"stop", loc.Label(),
		"provider", provider,
		"kind", kind.String(),
		"error", err,
	)
}

// Providers returns the configured provider names.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return names
}

// Locations delegates to the underlying store.
func (s *Service) Locations(ctx context.Context) ([]Location, error) {
	return s.store.ListLocations(ctx)
}

// GetLatest returns the newest observation of each provider and their summary.
func (s *Service) GetLatest(ctx context.Context, locationID int64) ([]Observation, Summary, error) {
	obs, err := s.store.GetLatest(ctx, locationID)
	if err != nil {
		return nil, Summary{}, err
	}
	return obs, Summarize(locationID, obs), nil
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(ctx context.Context, locationID int64, from, to time.Time) ([]Observation, error) {
	return s.store.GetRange(ctx, locationID, from, to)
}
