// Package ma computes the precomputed funding moving averages: per-venue rows
// over the canonical windows and the cross-venue aggregates on top.
package ma

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/perpscan/perpscan/internal/funding"
	"github.com/perpscan/perpscan/internal/metrics"
	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/store"
)

// activeWindow bounds which (symbol, venue) pairs are recomputed: anything
// with a unified row in the last day.
const activeWindow = 24 * time.Hour

// outlierSigmas is the refilter band around the first-pass mean.
const outlierSigmas = 3.0

type pairKey struct {
	symbol string
	venue  string
}

// Engine recomputes the MA tables from the unified funding table.
type Engine struct {
	unified *store.UnifiedRepo
	mas     *store.MARepo
	metrics *metrics.Registry
	log     zerolog.Logger

	now func() time.Time
}

// NewEngine creates the moving-average engine.
func NewEngine(unified *store.UnifiedRepo, mas *store.MARepo, reg *metrics.Registry, log zerolog.Logger) *Engine {
	return &Engine{
		unified: unified,
		mas:     mas,
		metrics: reg,
		log:     log.With().Str("component", "ma_engine").Logger(),
		now:     time.Now,
	}
}

// Run recomputes every window for every active (symbol, venue) pair, then
// rebuilds the cross-venue and latest-MA tables.
func (e *Engine) Run(ctx context.Context) error {
	now := e.now()
	pairs, err := e.unified.ActivePairs(ctx, now.Add(-activeWindow).Unix())
	if err != nil {
		return err
	}

	written := 0
	for _, w := range models.MAWindows {
		from := now.Add(-w.Duration()).Unix()
		to := now.Unix()

		// One query per window; per-pair reads would mean thousands of round
		// trips across 13 venues.
		samples, err := e.unified.WindowSamples(ctx, from, to)
		if err != nil {
			return err
		}
		grouped := make(map[pairKey][]float64, len(pairs))
		for _, s := range samples {
			k := pairKey{symbol: s.NormalizedSymbol, venue: s.Venue}
			grouped[k] = append(grouped[k], s.Rate1hPercent)
		}

		rows := make([]models.MARow, 0, len(pairs))
		for _, p := range pairs {
			// A listing younger than the window cannot carry that window's MA.
			if w != models.Window24h && p.FirstSeen > from {
				continue
			}

			row, ok := Compute(grouped[pairKey{symbol: p.NormalizedSymbol, venue: p.Venue}], w)
			if !ok {
				continue
			}

			row.NormalizedSymbol = p.NormalizedSymbol
			row.Venue = p.Venue
			row.WindowStart = from
			row.WindowEnd = to
			row.CalculatedAt = now
			rows = append(rows, row)
		}

		if err := e.mas.UpsertBatch(ctx, rows); err != nil {
			return err
		}
		written += len(rows)
	}

	if err := e.mas.RefreshCross(ctx); err != nil {
		return err
	}
	if err := e.mas.RefreshCache(ctx); err != nil {
		return err
	}

	e.metrics.MARowsWritten.Add(float64(written))
	e.log.Info().Int("pairs", len(pairs)).Int("rows", written).Msg("MA pass complete")
	return nil
}

// Compute derives one MA row from a window's rate_1h_percent samples. Returns
// false when the window has fewer samples than its minimum. The average is
// re-taken over samples within the outlier band when the spread allows it.
func Compute(samples []float64, w models.MAWindow) (models.MARow, bool) {
	if len(samples) < w.MinSamples() {
		return models.MARow{}, false
	}

	mean, sd := meanStddev(samples)
	filtered := samples
	if len(samples) >= 3 && sd > 0 {
		filtered = within(samples, mean-outlierSigmas*sd, mean+outlierSigmas*sd)
		if len(filtered) == 0 {
			filtered = samples
		}
	}
	maRate, _ := meanStddev(filtered)

	minRate, maxRate := samples[0], samples[0]
	for _, s := range samples[1:] {
		if s < minRate {
			minRate = s
		}
		if s > maxRate {
			maxRate = s
		}
	}

	return models.MARow{
		Window:      w,
		MARate1h:    maRate,
		MAAPR:       maRate * funding.HoursPerYear,
		SampleCount: int64(len(filtered)),
		StdDev:      sd,
		MinRate:     minRate,
		MaxRate:     maxRate,
	}, true
}

func meanStddev(samples []float64) (float64, float64) {
	n := float64(len(samples))
	if n == 0 {
		return 0, 0
	}

	var mean float64
	for _, s := range samples {
		mean += s
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}

	var variance float64
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	variance /= n - 1
	return mean, math.Sqrt(variance)
}

func within(samples []float64, lo, hi float64) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s >= lo && s <= hi {
			out = append(out, s)
		}
	}
	return out
}
