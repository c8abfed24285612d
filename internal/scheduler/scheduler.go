// Package scheduler drives the one-second tick that maps cron
// schedules onto wall-clock triggers and sweeps the executor's
// per-job watchdogs. It deliberately does not delegate to
// github.com/robfig/cron/v3's entry-based dispatcher: that library
// compiles each schedule into a long-lived cron.Schedule and computes
// Next() once per registration, whereas Kiwibes schedules must be
// re-validated and matched against a live, mutable catalog on every
// tick (a job can be created, edited, or deleted between ticks).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiwibes/kiwibesd/internal/catalog"
	"github.com/kiwibes/kiwibesd/internal/cronmatch"
)

// Executor is the subset of executor.Executor the scheduler drives.
type Executor interface {
	Start(name string) error
	SweepWatchdog()
}

// Catalog is the subset of catalog.Catalog the scheduler reads.
type Catalog interface {
	Scheduled() []string
	Details(name string) (*catalog.Job, error)
}

// Scheduler runs the second-resolution tick loop described in the
// component design.
type Scheduler struct {
	catalog  Catalog
	executor Executor
	logger   zerolog.Logger

	tick time.Duration

	mu        sync.Mutex
	lastFired map[string]int64 // job name -> unix second last fired, suppresses double-fire
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a Scheduler that ticks once per second.
func New(cat Catalog, exec Executor, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		catalog:   cat,
		executor:  exec,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		tick:      time.Second,
		lastFired: make(map[string]int64),
	}
}

// Start begins the tick loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop halts the tick loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evaluate(now)
		}
	}
}

// evaluate runs one tick: fire any scheduled job whose expression
// matches now and that isn't already running, then sweep watchdogs.
func (s *Scheduler) evaluate(now time.Time) {
	second := now.Unix()

	for _, name := range s.catalog.Scheduled() {
		job, err := s.catalog.Details(name)
		if err != nil {
			continue
		}

		matched, err := cronmatch.Matches(job.Schedule, now)
		if err != nil || !matched {
			continue
		}

		if s.alreadyFired(name, second) {
			continue
		}

		if job.IsRunning() {
			// Per component design: the scheduler only calls Start for
			// entries whose status == stopped. A running job's trigger
			// is simply skipped, not queued as a pending-start.
			s.markFired(name, second)
			continue
		}

		s.markFired(name, second)
		if err := s.executor.Start(name); err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("scheduled start failed")
		}
	}

	s.executor.SweepWatchdog()
}

func (s *Scheduler) alreadyFired(name string, second int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFired[name] == second
}

func (s *Scheduler) markFired(name string, second int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFired[name] = second
}
