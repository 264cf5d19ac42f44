// Package rollup drives the staged compaction of raw snapshots: 15s rows into
// minute aggregates, minute aggregates into permanent hour rows, and the
// cross-venue live view on top.
package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/perpscan/perpscan/internal/funding"
	"github.com/perpscan/perpscan/internal/metrics"
	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/store"
	"github.com/perpscan/perpscan/internal/symbols"
	"github.com/perpscan/perpscan/internal/venues"
)

const (
	// batchSpan is how much raw history one minute-rollup batch consumes.
	batchSpan = time.Hour
	// maxBatchesPerRun bounds a single minute-rollup invocation so a large
	// backlog drains across runs instead of holding one long transaction.
	maxBatchesPerRun = 50
	// rollupLag keeps the most recent raw rows out of the rollup so late
	// flushes still land in their minute bucket.
	rollupLag = 5 * time.Minute
	// liveWindow is how far back the live view looks for a venue's latest
	// snapshot before considering the market inactive.
	liveWindow = 10 * time.Minute
	// volatilityLookback is how much hour history the volatility figures read.
	volatilityLookback = 7 * 24 * time.Hour
)

// Pipeline owns the three rollup stages. All stages are idempotent; re-running
// one over the same span rewrites the same aggregate rows.
type Pipeline struct {
	repo    *store.RollupRepo
	metrics *metrics.Registry
	log     zerolog.Logger

	now func() time.Time
}

// New creates the rollup pipeline.
func New(repo *store.RollupRepo, reg *metrics.Registry, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		repo:    repo,
		metrics: reg,
		log:     log.With().Str("component", "rollup").Logger(),
		now:     time.Now,
	}
}

// RollupMinutes drains raw snapshots older than the lag into minute
// aggregates, one hour-aligned batch at a time. Returns the number of minute
// rows written across all batches.
func (p *Pipeline) RollupMinutes(ctx context.Context) (int, error) {
	start := p.now()
	defer func() {
		p.metrics.RollupDuration.WithLabelValues("minute").Observe(time.Since(start).Seconds())
	}()

	total := 0
	for i := 0; i < maxBatchesPerRun; i++ {
		oldest, err := p.repo.OldestSnapshotMs(ctx)
		if err != nil {
			return total, err
		}
		// Floored to a minute boundary: a batch that ends mid-minute would
		// aggregate only the minute's early samples, and the next pass would
		// overwrite that row with the late ones.
		cutoff := p.now().Add(-rollupLag).UnixMilli() / 60_000 * 60_000
		if oldest == 0 || oldest >= cutoff {
			break
		}

		from := oldest / batchSpan.Milliseconds() * batchSpan.Milliseconds()
		to := from + batchSpan.Milliseconds()
		if to > cutoff {
			to = cutoff
		}

		n, err := p.repo.RollupMinuteBatch(ctx, from, to, symbols.Normalize)
		if err != nil {
			return total, fmt.Errorf("minute batch [%d, %d) failed: %w", from, to, err)
		}
		total += n
		p.metrics.RollupRows.WithLabelValues("minute").Add(float64(n))
		p.log.Debug().Int64("from_ms", from).Int64("to_ms", to).Int("rows", n).Msg("Minute batch rolled up")
	}

	if total > 0 {
		p.log.Info().Int("rows", total).Msg("Minute rollup complete")
	}
	return total, nil
}

// RollupHours compacts fully-materialized hours of minute aggregates into
// permanent hour rows. The hour that just ended is excluded: the minute stage
// lags raw rows by rollupLag, so its tail minutes may not exist yet, and
// compacting early would later overwrite the hour row with only the tail.
func (p *Pipeline) RollupHours(ctx context.Context) (int, error) {
	start := p.now()
	defer func() {
		p.metrics.RollupDuration.WithLabelValues("hour").Observe(time.Since(start).Seconds())
	}()

	cutoff := (p.now().Unix()/3600 - 1) * 3600
	n, err := p.repo.RollupHours(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("hour rollup failed: %w", err)
	}

	p.metrics.RollupRows.WithLabelValues("hour").Add(float64(n))
	if n > 0 {
		p.log.Info().Int("rows", n).Int64("cutoff", cutoff).Msg("Hour rollup complete")
	}
	return n, nil
}

// RefreshLiveView rebuilds the normalized-token live view from the latest raw
// snapshot per (venue, symbol) seen inside the live window, attaching the
// volatility figures computed from hour history.
func (p *Pipeline) RefreshLiveView(ctx context.Context) (int, error) {
	start := p.now()
	defer func() {
		p.metrics.RollupDuration.WithLabelValues("live_view").Observe(time.Since(start).Seconds())
	}()

	since := p.now().Add(-liveWindow).UnixMilli()
	snaps, err := p.repo.ActiveLatestSnapshots(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	volFrom := p.now().Add(-volatilityLookback).Unix()
	rows := make([]models.NormalizedToken, 0, len(snaps))
	for _, s := range snaps {
		rate, err := funding.Normalize(venues.Venue(s.Venue), s.FundingRate, s.FundingInterval)
		if err != nil {
			p.log.Warn().Err(err).Str("venue", s.Venue).Str("symbol", s.Symbol).Msg("Skipping live-view row")
			continue
		}

		row := models.NormalizedToken{
			NormalizedSymbol: symbols.Normalize(s.Symbol),
			Venue:            s.Venue,
			Symbol:           s.Symbol,
			MarkPrice:        s.MarkPrice,
			IndexPrice:       s.IndexPrice,
			OpenInterest:     s.OpenInterest,
			OpenInterestUSD:  s.OpenInterestUSD,
			VolumeQuote24h:   s.VolumeQuote24h,
			FundingRate:      s.FundingRate,
			FundingRate1h:    rate.HourlyPercent,
			FundingAPR:       rate.APRPercent,
		}

		series, err := p.repo.HourSeries(ctx, s.Venue, s.Symbol, volFrom)
		if err != nil {
			p.log.Warn().Err(err).Str("venue", s.Venue).Str("symbol", s.Symbol).Msg("Hour series unavailable")
		} else if len(series) > 0 {
			row.ATR14 = atr14(series)
			row.Volatility24h = realizedVol(series, 24)
			row.Volatility7d = realizedVol(series, 7*24)
			row.BollingerWidth = bollingerWidth(series)
		}

		rows = append(rows, row)
	}

	if err := p.repo.UpsertNormalizedTokens(ctx, rows); err != nil {
		return 0, err
	}
	if err := p.repo.UpsertVolatilityStats(ctx, rows); err != nil {
		return 0, err
	}

	p.metrics.RollupRows.WithLabelValues("live_view").Add(float64(len(rows)))
	p.log.Info().Int("rows", len(rows)).Msg("Live view refreshed")
	return len(rows), nil
}
