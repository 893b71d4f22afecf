// Package scheduler fires named trading cycles at configured local times
// of day and runs them on a bounded worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stockpilot/internal/config"
	"stockpilot/internal/logger"
	"stockpilot/internal/monitoring"
)

// maxCycleDuration caps how long a single cycle may run.
const maxCycleDuration = time.Hour

// Runner executes one trading cycle. The name identifies which configured
// cycle fired.
type Runner func(ctx context.Context, name string) error

// job is one named cycle with its daily fire time.
type job struct {
	name string
	at   config.Clock
}

// Scheduler triggers cycles at their configured wall-clock times. Each
// cycle name has at most one run in flight: a trigger that arrives while
// the previous run for that name is still executing is dropped and logged,
// never queued.
type Scheduler struct {
	loc             *time.Location
	jobs            []job
	workers         int
	shutdownTimeout time.Duration
	run             Runner
	log             *logger.Logger

	mu       sync.Mutex
	inflight map[string]bool

	triggers chan string
	wg       sync.WaitGroup

	// cycleCtx is the parent of every running cycle. drain cancels it so a
	// shutting-down cycle stops between tickets instead of running blind.
	cycleCtx   context.Context
	stopCycles context.CancelFunc

	// now is swappable for tests.
	now func() time.Time
}

// New builds a scheduler from config. run is invoked for every fired cycle.
func New(cfg config.ScheduleConfig, run Runner, log *logger.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	s := &Scheduler{
		loc:             loc,
		workers:         workers,
		shutdownTimeout: cfg.ShutdownTimeout,
		run:             run,
		log:             log,
		inflight:        make(map[string]bool),
		triggers:        make(chan string, len(cfg.Cycles)+1),
		now:             time.Now,
	}
	s.cycleCtx, s.stopCycles = context.WithCancel(context.Background())
	for _, c := range cfg.Cycles {
		clock, err := config.ParseClock(c.At)
		if err != nil {
			return nil, fmt.Errorf("cycle %q: %w", c.Name, err)
		}
		s.jobs = append(s.jobs, job{name: c.Name, at: clock})
	}
	sort.Slice(s.jobs, func(i, j int) bool { return s.jobs[i].name < s.jobs[j].name })
	return s, nil
}

// Run blocks, firing cycles until ctx is cancelled, then drains in-flight
// work for up to the configured shutdown timeout.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		<-ctx.Done()
		return nil
	}

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.log.Info("Scheduler running %d cycles in %s with %d workers", len(s.jobs), s.loc, s.workers)
	for {
		next, fireAt := s.nextJob()
		wait := time.Until(fireAt)
		s.log.Info("Next cycle %q at %s (%s)", next.name, fireAt.Format("15:04 MST"), wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.drain()
		case <-timer.C:
			s.Trigger(next.name)
		}
	}
}

// Trigger requests a run of the named cycle. It returns false if a run of
// that cycle is already in flight and the trigger was dropped.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	if s.inflight[name] {
		s.mu.Unlock()
		s.log.LogWarning("Scheduler", "cycle %q still running, dropping trigger", name)
		monitoring.RecordDroppedTrigger(name)
		return false
	}
	s.inflight[name] = true
	s.mu.Unlock()

	s.triggers <- name
	return true
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Drain anything already queued before exiting.
			for {
				select {
				case name := <-s.triggers:
					s.execute(name)
				default:
					return
				}
			}
		case name := <-s.triggers:
			s.execute(name)
		}
	}
}

func (s *Scheduler) execute(name string) {
	defer func() {
		s.mu.Lock()
		delete(s.inflight, name)
		s.mu.Unlock()
	}()

	// Cycles hang off cycleCtx rather than Run's context, so a shutdown
	// signal does not cut one off mid-order: drain cancels cycleCtx and the
	// cycle winds down at its next ticket boundary.
	ctx, cancel := context.WithTimeout(s.cycleCtx, maxCycleDuration)
	defer cancel()

	start := s.now()
	if err := s.run(ctx, name); err != nil {
		s.log.LogError(fmt.Sprintf("Cycle %q failed after %s", name, time.Since(start).Round(time.Millisecond)), err)
		return
	}
	s.log.Cycle("Cycle %q completed in %s", name, time.Since(start).Round(time.Millisecond))
}

// nextJob returns the job with the earliest upcoming fire time.
func (s *Scheduler) nextJob() (job, time.Time) {
	now := s.now().In(s.loc)
	best := s.jobs[0]
	bestAt := s.fireTime(best, now)
	for _, j := range s.jobs[1:] {
		if at := s.fireTime(j, now); at.Before(bestAt) {
			best, bestAt = j, at
		}
	}
	return best, bestAt
}

// fireTime returns the next occurrence of the job's clock time after now.
func (s *Scheduler) fireTime(j job, now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), j.at.Hour, j.at.Minute, 0, 0, s.loc)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// drain signals running cycles to wind down, then waits for them up to the
// shutdown timeout.
func (s *Scheduler) drain() error {
	s.stopCycles()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		s.log.Info("Scheduler drained cleanly")
		return nil
	case <-time.After(timeout):
		s.log.LogWarning("Scheduler", "shutdown timeout %s elapsed with cycles still running", timeout)
		return fmt.Errorf("scheduler drain timed out after %s", timeout)
	}
}

// CycleNames returns the configured cycle names, sorted.
func (s *Scheduler) CycleNames() []string {
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.name
	}
	return names
}
