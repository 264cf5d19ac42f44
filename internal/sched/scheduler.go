// Package sched runs the recurring maintenance passes: rollups, unified sync,
// derived-metric rebuilds and the collector health probe.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/perpscan/perpscan/internal/arb"
	"github.com/perpscan/perpscan/internal/collector"
	"github.com/perpscan/perpscan/internal/ma"
	"github.com/perpscan/perpscan/internal/rollup"
	"github.com/perpscan/perpscan/internal/unified"
	"github.com/perpscan/perpscan/internal/venues"
)

// Job is one recurring pass. Jobs never overlap with themselves; a slow run
// simply delays the next tick.
type Job struct {
	Name string
	// Every is the run interval.
	Every time.Duration
	// AlignToInterval starts runs on wall-clock multiples of Every (e.g. an
	// hourly job fires on the hour).
	AlignToInterval bool
	Run             func(ctx context.Context) error
}

// Result records a job's last completed run.
type Result struct {
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// Scheduler runs a fixed set of jobs, one goroutine each.
type Scheduler struct {
	jobs []Job
	log  zerolog.Logger

	mu      sync.Mutex
	results map[string]Result
}

// New creates a scheduler over the given jobs.
func New(jobs []Job, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		jobs:    jobs,
		log:     log.With().Str("component", "scheduler").Logger(),
		results: make(map[string]Result),
	}
}

// Start launches every job loop and returns. Loops exit when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		go s.loop(ctx, j)
	}
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	for {
		wait := j.Every
		if j.AlignToInterval {
			now := time.Now()
			wait = now.Truncate(j.Every).Add(j.Every).Sub(now)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) {
	res := Result{Name: j.Name, StartedAt: time.Now()}

	err := j.Run(ctx)
	res.FinishedAt = time.Now()
	res.Success = err == nil
	if err != nil {
		res.Error = err.Error()
		s.log.Error().Err(err).Str("job", j.Name).Msg("Job failed")
	} else {
		s.log.Debug().Str("job", j.Name).
			Dur("took", res.FinishedAt.Sub(res.StartedAt)).Msg("Job complete")
	}

	s.mu.Lock()
	s.results[j.Name] = res
	s.mu.Unlock()
}

// Results returns the last run per job.
func (s *Scheduler) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	return out
}

// healthSilence is how long a running collector may go without venue data
// before the probe restarts it: three missed grid intervals.
const healthSilence = 45 * time.Second

// Jobs wires the standard maintenance passes. The five-minute pass keeps its
// internal order: rollup minutes, refresh the live view, sync unified, then
// rebuild MAs and arbitrage on top of the fresh unified rows.
func Jobs(p *rollup.Pipeline, sync *unified.Syncer, maEng *ma.Engine, arbEng *arb.Engine, mgr *collector.Manager) []Job {
	return []Job{
		{
			Name:  "pipeline_5m",
			Every: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				if _, err := p.RollupMinutes(ctx); err != nil {
					return err
				}
				if _, err := p.RefreshLiveView(ctx); err != nil {
					return err
				}
				if err := sync.SyncAll(ctx); err != nil {
					return err
				}
				if err := maEng.Run(ctx); err != nil {
					return err
				}
				return arbEng.Run(ctx)
			},
		},
		{
			Name:            "rollup_1h",
			Every:           time.Hour,
			AlignToInterval: true,
			Run: func(ctx context.Context) error {
				_, err := p.RollupHours(ctx)
				return err
			},
		},
		{
			Name:  "health_probe",
			Every: time.Minute,
			Run: func(ctx context.Context) error {
				return probe(mgr)
			},
		},
	}
}

// probe restarts running collectors that have gone silent. Venues that are
// stopped, or that exhausted their reconnects and failed, are left alone
// until start is requested again.
func probe(mgr *collector.Manager) error {
	var firstErr error
	for _, st := range mgr.ObserveAll() {
		if !st.Running {
			continue
		}
		if st.LastMessageAt.IsZero() || time.Since(st.LastMessageAt) < healthSilence {
			continue
		}
		if err := mgr.Restart(venues.Venue(st.Venue)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
