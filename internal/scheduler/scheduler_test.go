package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

type fakeRunner struct {
	mu      sync.Mutex
	slots   []time.Time
	started chan struct{}
	release chan struct{}
	err     error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan struct{}, 16)}
}

func (r *fakeRunner) RunCycle(ctx context.Context, slot time.Time) (weather.CycleReport, error) {
	r.mu.Lock()
	r.slots = append(r.slots, slot)
	r.mu.Unlock()
	r.started <- struct{}{}

	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return weather.CycleReport{Slot: slot}, ctx.Err()
		}
	}
	return weather.CycleReport{Slot: slot}, r.err
}

func (r *fakeRunner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitStarted(t *testing.T, r *fakeRunner) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not start")
	}
}

func TestSlot(t *testing.T) {
	at := time.Date(2024, 1, 10, 12, 34, 56, 0, time.UTC)

	s := New(newFakeRunner(), Options{Delay: time.Hour}, quietLogger())
	if got := s.Slot(at); !got.Equal(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected interval slot %v", got)
	}

	s = New(newFakeRunner(), Options{Schedule: "*/5 * * * *"}, quietLogger())
	if got := s.Slot(at); !got.Equal(time.Date(2024, 1, 10, 12, 34, 0, 0, time.UTC)) {
		t.Fatalf("unexpected cron slot %v", got)
	}
}

func TestRunNowUsesCurrentSlot(t *testing.T) {
	r := newFakeRunner()
	s := New(r, Options{Delay: 15 * time.Minute}, quietLogger())
	s.now = func() time.Time { return time.Date(2024, 1, 10, 12, 20, 0, 0, time.UTC) }

	report, err := s.RunNow(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Slot.Equal(time.Date(2024, 1, 10, 12, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected slot %v", report.Slot)
	}
}

func TestRunNowRejectsOverlap(t *testing.T) {
	r := newFakeRunner()
	r.release = make(chan struct{})
	s := New(r, Options{Delay: time.Hour}, quietLogger())

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background())
		done <- err
	}()
	waitStarted(t, r)

	if _, err := s.RunNow(context.Background()); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("expected ErrCycleRunning, got %v", err)
	}
	if _, err := s.Trigger(); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("expected ErrCycleRunning from Trigger, got %v", err)
	}

	close(r.release)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if r.calls() != 1 {
		t.Fatalf("expected one cycle, got %d", r.calls())
	}
}

func TestCycleTimeout(t *testing.T) {
	r := newFakeRunner()
	r.release = make(chan struct{})
	s := New(r, Options{Delay: time.Hour, CycleTimeout: 20 * time.Millisecond}, quietLogger())

	_, err := s.RunNow(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestTriggerCallsFatalHookOnDatabaseFailure(t *testing.T) {
	r := newFakeRunner()
	r.err = failure.New(failure.Database, "list locations", errors.New("connection refused"))

	fatal := make(chan error, 1)
	s := New(r, Options{Delay: time.Hour, OnFatal: func(err error) { fatal <- err }}, quietLogger())

	if _, err := s.Trigger(); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	select {
	case err := <-fatal:
		if !failure.Is(err, failure.Database) {
			t.Fatalf("unexpected fatal error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fatal hook not called")
	}
	s.Stop()
}

func TestStartRunsImmediatelyAndStopCancels(t *testing.T) {
	r := newFakeRunner()
	r.release = make(chan struct{})
	s := New(r, Options{Delay: time.Hour}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitStarted(t, r)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not cancel the running cycle")
	}
}

func TestNoCyclesAfterStop(t *testing.T) {
	r := newFakeRunner()
	s := New(r, Options{Delay: time.Hour}, quietLogger())
	s.Stop()

	if _, err := s.Trigger(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from Trigger, got %v", err)
	}
	if _, err := s.RunNow(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from RunNow, got %v", err)
	}
	if r.calls() != 0 {
		t.Fatalf("expected no cycles, got %d", r.calls())
	}
	// the refused Trigger must not keep the cycle lock
	if !s.running.TryLock() {
		t.Fatal("cycle lock still held")
	}
	s.running.Unlock()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(newFakeRunner(), Options{Schedule: "not a cron"}, quietLogger())
	if err := s.Start(context.Background()); !failure.Is(err, failure.Config) {
		t.Fatalf("expected config failure, got %v", err)
	}
}
