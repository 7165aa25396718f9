package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SweepFn is one pass over the due records. It reports how many records
// it released and how many dispatch attempts failed, so the scheduler
// can keep running totals across sweeps.
type SweepFn func(ctx context.Context) (released, failed int)

// Scheduler runs the deadline sweep on a fixed interval. The interval
// bounds release latency, so it should stay at or below the smallest
// meaningful deadline granularity (minutes). One sweep runs at a time,
// starting immediately on Start.
type Scheduler struct {
	interval time.Duration
	sweepFn  SweepFn

	running   atomic.Bool
	sweeps    atomic.Int64
	released  atomic.Int64
	failed    atomic.Int64
	lastSweep atomic.Int64 // unix nanos, 0 until first sweep

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration, sweepFn SweepFn) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if sweepFn == nil {
		return nil, errors.New("sweepFn must not be nil")
	}
	return &Scheduler{
		interval: interval,
		sweepFn:  sweepFn,
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("sweep scheduler started", "interval", s.interval.String())

		s.safeSweep(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("sweep scheduler stopping")
				return
			case <-ticker.C:
				s.safeSweep(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("sweep scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// SweepCount returns the number of completed sweeps since creation.
func (s *Scheduler) SweepCount() int64 {
	return s.sweeps.Load()
}

// ReleaseTotals returns the running totals reported by completed sweeps:
// records released and dispatch attempts failed.
func (s *Scheduler) ReleaseTotals() (released, failed int64) {
	return s.released.Load(), s.failed.Load()
}

// LastSweepAt returns the completion time of the most recent sweep, or
// the zero time if none has run yet.
func (s *Scheduler) LastSweepAt() time.Time {
	ns := s.lastSweep.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (s *Scheduler) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sweep panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	released, failed := s.sweepFn(ctx)
	s.released.Add(int64(released))
	s.failed.Add(int64(failed))
	n := s.sweeps.Add(1)
	s.lastSweep.Store(time.Now().UnixNano())
	slog.Info("sweep completed",
		"sweep", n,
		"released", released,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
