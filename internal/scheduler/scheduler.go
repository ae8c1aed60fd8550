package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// ErrCycleRunning is returned when a cycle is requested while another one is in flight.
var ErrCycleRunning = errors.New("a polling cycle is already running")

// Runner executes one polling cycle for a slot.
type Runner interface {
	RunCycle(ctx context.Context, slot time.Time) (weather.CycleReport, error)
}

// Options controls when cycles run.
type Options struct {
	// Delay between cycles; ignored when Schedule is set.
	Delay time.Duration
	// Schedule is a standard cron expression.
	Schedule string
	// CycleTimeout bounds a single cycle; zero means no limit.
	CycleTimeout time.Duration
	// OnFatal is called when a cycle cannot even list its stops. It must not
	// call Stop synchronously.
	OnFatal func(error)
}

// Scheduler runs polling cycles on a fixed delay or a cron schedule.
// At most one cycle runs at a time.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	opts      Options
	logger    *slog.Logger
	now       func() time.Time

	running sync.Mutex
	wg      sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// New creates a new Scheduler.
func New(runner Runner, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Hour
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		opts:      opts,
		logger:    logger.With("component", "scheduler"),
		now:       func() time.Time { return time.Now().UTC() },
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Slot returns the cycle slot t falls into. Cycles started within the same slot
// write to the same rows, so a retried cycle only fills in what is missing.
func (s *Scheduler) Slot(t time.Time) time.Time {
	t = t.UTC()
	if s.opts.Schedule != "" {
		return t.Truncate(time.Minute)
	}
	return t.Truncate(s.opts.Delay)
}

// Start schedules the polling job. In delay mode the first cycle runs immediately.
// Cancelling ctx stops the scheduler like Stop does.
func (s *Scheduler) Start(ctx context.Context) error {
	parent := s.context()

	var job *gocron.Scheduler
	if s.opts.Schedule != "" {
		job = s.scheduler.Cron(s.opts.Schedule)
	} else {
		job = s.scheduler.Every(s.opts.Delay)
	}
	if _, err := job.Do(s.tick); err != nil {
		return failure.New(failure.Config, "schedule cycle", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-parent.Done():
		}
	}()

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "delay", s.opts.Delay, "schedule", s.opts.Schedule)
	return nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) tick() {
	_, err := s.RunNow(s.context())
	s.handle(err)
}

func (s *Scheduler) handle(err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrCycleRunning):
		s.logger.Warn("skipping tick, previous cycle still running")
	case errors.Is(err, context.Canceled):
		s.logger.Info("cycle cancelled")
	case failure.Is(err, failure.Database):
		s.logger.Error("cycle aborted", "error", err)
		if s.opts.OnFatal != nil {
			s.opts.OnFatal(err)
		}
	default:
		s.logger.Error("cycle failed", "error", err)
	}
}

// RunNow runs one cycle for the current slot and waits for it.
// After Stop it returns context.Canceled.
func (s *Scheduler) RunNow(ctx context.Context) (weather.CycleReport, error) {
	if !s.running.TryLock() {
		return weather.CycleReport{}, ErrCycleRunning
	}
	defer s.running.Unlock()

	if _, ok := s.begin(); !ok {
		return weather.CycleReport{}, context.Canceled
	}
	defer s.wg.Done()
	return s.run(ctx, s.Slot(s.now()))
}

// Trigger starts a cycle in the background and returns its slot.
// It fails with ErrCycleRunning instead of queueing behind a running cycle,
// and with context.Canceled once the scheduler is stopped.
func (s *Scheduler) Trigger() (time.Time, error) {
	if !s.running.TryLock() {
		return time.Time{}, ErrCycleRunning
	}
	ctx, ok := s.begin()
	if !ok {
		s.running.Unlock()
		return time.Time{}, context.Canceled
	}
	slot := s.Slot(s.now())

	go func() {
		defer s.wg.Done()
		_, err := s.run(ctx, slot)
		s.running.Unlock()
		s.handle(err)
	}()
	return slot, nil
}

// begin registers a cycle with the wait group unless Stop has been called.
func (s *Scheduler) begin() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, false
	}
	s.wg.Add(1)
	return s.ctx, true
}

func (s *Scheduler) run(ctx context.Context, slot time.Time) (weather.CycleReport, error) {
	if s.opts.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CycleTimeout)
		defer cancel()
	}
	return s.runner.RunCycle(ctx, slot)
}

// Stop cancels any running cycle, stops future ticks and waits for the cycle to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cancel()
	s.mu.Unlock()

	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.wg.Wait()
}
