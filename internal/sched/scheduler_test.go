package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpscan/perpscan/internal/collector"
	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/venues"
)

func TestRunOnceRecordsResult(t *testing.T) {
	s := New(nil, zerolog.Nop())

	s.runOnce(context.Background(), Job{
		Name: "ok",
		Run:  func(ctx context.Context) error { return nil },
	})
	s.runOnce(context.Background(), Job{
		Name: "boom",
		Run:  func(ctx context.Context) error { return errors.New("db down") },
	})

	results := s.Results()
	require.Len(t, results, 2)

	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.True(t, byName["ok"].Success)
	assert.False(t, byName["boom"].Success)
	assert.Equal(t, "db down", byName["boom"].Error)
}

func TestSchedulerLoopStopsOnCancel(t *testing.T) {
	var runs int32
	s := New([]Job{{
		Name:  "tick",
		Every: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	}}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(30 * time.Millisecond)
	after := atomic.LoadInt32(&runs)
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&runs), after+1)
}

type silentCollector struct {
	venue venues.Venue
	runs  *int32
}

func (c *silentCollector) Run(ctx context.Context) {
	atomic.AddInt32(c.runs, 1)
	<-ctx.Done()
}
func (c *silentCollector) Status() string               { return models.StatusRunning }
func (c *silentCollector) Debug() collector.DebugInfo   { return collector.DebugInfo{} }
func (c *silentCollector) LastMessageAt() time.Time     { return time.Now().Add(-2 * time.Minute) }
func (c *silentCollector) Venue() venues.Venue          { return c.venue }

func TestProbeRestartsOnlyRunningCollectors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	mgr := collector.NewManager(ctx, map[venues.Venue]collector.Factory{
		venues.Lighter: func() collector.Collector {
			return &silentCollector{venue: venues.Lighter, runs: &runs}
		},
	}, zerolog.Nop())

	// Never started: the probe must not launch it.
	require.NoError(t, probe(mgr))
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))

	// Running but silent past the threshold: restarted.
	require.NoError(t, mgr.Start(venues.Lighter))
	require.NoError(t, probe(mgr))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) == 2
	}, time.Second, 5*time.Millisecond)

	// Stopped: the probe must leave it down.
	require.NoError(t, mgr.Stop(venues.Lighter))
	require.NoError(t, probe(mgr))
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
}
