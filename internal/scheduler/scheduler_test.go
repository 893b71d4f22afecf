package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpilot/internal/config"
	"stockpilot/internal/logger"
)

func testSchedule() config.ScheduleConfig {
	return config.ScheduleConfig{
		Timezone:        "America/New_York",
		Workers:         2,
		ShutdownTimeout: 2 * time.Second,
		Cycles: []config.CycleConfig{
			{Name: "pre-market", At: "07:45"},
			{Name: "daily", At: "16:30"},
		},
	}
}

func TestNew_RejectsBadTimezone(t *testing.T) {
	cfg := testSchedule()
	cfg.Timezone = "Mars/Olympus"
	_, err := New(cfg, func(context.Context, string) error { return nil }, logger.NewDiscard())
	assert.Error(t, err)
}

func TestNew_RejectsBadClock(t *testing.T) {
	cfg := testSchedule()
	cfg.Cycles[0].At = "25:00"
	_, err := New(cfg, func(context.Context, string) error { return nil }, logger.NewDiscard())
	assert.Error(t, err)
}

func TestCycleNames_Sorted(t *testing.T) {
	s, err := New(testSchedule(), func(context.Context, string) error { return nil }, logger.NewDiscard())
	require.NoError(t, err)
	assert.Equal(t, []string{"daily", "pre-market"}, s.CycleNames())
}

func TestTrigger_DropsDuplicateWhileInFlight(t *testing.T) {
	s, err := New(testSchedule(), func(context.Context, string) error { return nil }, logger.NewDiscard())
	require.NoError(t, err)

	assert.True(t, s.Trigger("daily"))
	assert.False(t, s.Trigger("daily"), "second trigger while queued must be dropped")
	assert.True(t, s.Trigger("pre-market"), "other cycles are independent")

	// Once the queued run executes, the name frees up again.
	<-s.triggers
	s.execute("daily")
	assert.True(t, s.Trigger("daily"))
}

func TestExecute_ClearsInFlightOnError(t *testing.T) {
	ran := atomic.Int32{}
	run := func(context.Context, string) error {
		ran.Add(1)
		return assert.AnError
	}
	s, err := New(testSchedule(), run, logger.NewDiscard())
	require.NoError(t, err)

	require.True(t, s.Trigger("daily"))
	<-s.triggers
	s.execute("daily")

	assert.Equal(t, int32(1), ran.Load())
	assert.True(t, s.Trigger("daily"), "a failed run must not wedge the cycle")
}

func TestNextJob_PicksEarliestUpcoming(t *testing.T) {
	s, err := New(testSchedule(), func(context.Context, string) error { return nil }, logger.NewDiscard())
	require.NoError(t, err)

	loc, _ := time.LoadLocation("America/New_York")

	// At 06:00 the 07:45 cycle is next.
	s.now = func() time.Time { return time.Date(2026, 3, 2, 6, 0, 0, 0, loc) }
	j, at := s.nextJob()
	assert.Equal(t, "pre-market", j.name)
	assert.Equal(t, time.Date(2026, 3, 2, 7, 45, 0, 0, loc), at)

	// At noon the 16:30 cycle is next.
	s.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, loc) }
	j, at = s.nextJob()
	assert.Equal(t, "daily", j.name)
	assert.Equal(t, time.Date(2026, 3, 2, 16, 30, 0, 0, loc), at)

	// At 17:00 both have passed; the earliest tomorrow wins.
	s.now = func() time.Time { return time.Date(2026, 3, 2, 17, 0, 0, 0, loc) }
	j, at = s.nextJob()
	assert.Equal(t, "pre-market", j.name)
	assert.Equal(t, time.Date(2026, 3, 3, 7, 45, 0, 0, loc), at)

	// Exactly at fire time the next occurrence is tomorrow, not now.
	s.now = func() time.Time { return time.Date(2026, 3, 2, 16, 30, 0, 0, loc) }
	j, at = s.nextJob()
	assert.Equal(t, "pre-market", j.name)
}

func TestRun_ShutdownCancelsRunningCycle(t *testing.T) {
	started := make(chan struct{})
	stopped := make(chan struct{})
	run := func(ctx context.Context, _ string) error {
		close(started)
		select {
		case <-ctx.Done():
			close(stopped)
			return nil
		case <-time.After(10 * time.Second):
			return errors.New("cycle context never cancelled")
		}
	}
	s, err := New(testSchedule(), run, logger.NewDiscard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.True(t, s.Trigger("daily"))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered cycle never started")
	}

	// Shutting down must reach the running cycle, not just the timer loop.
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown never reached the running cycle")
	}
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not drain")
	}
}

func TestRun_ExecutesTriggeredCycleAndDrains(t *testing.T) {
	ran := make(chan string, 4)
	run := func(_ context.Context, name string) error {
		ran <- name
		return nil
	}
	s, err := New(testSchedule(), run, logger.NewDiscard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.True(t, s.Trigger("daily"))
	select {
	case name := <-ran:
		assert.Equal(t, "daily", name)
	case <-time.After(2 * time.Second):
		t.Fatal("triggered cycle never ran")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not drain")
	}
}
