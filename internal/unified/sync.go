// Package unified ingests per-venue funding history into the cross-venue
// unified table, deduplicated on (normalized symbol, venue, funding time).
package unified

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
	// batchSize caps one unified upsert transaction.
	batchSize = 500
	// fetchLimit bounds how much history one venue pass reads.
	fetchLimit = 5000
	// initialLookback seeds the sync cursor for a venue that has never been
	// synced, so the first pass prioritizes recent history.
	initialLookback = 7 * 24 * time.Hour
)

// msThreshold: funding times above this are milliseconds and get divided down
// to seconds.
const msThreshold = int64(1e10)

// Syncer copies new funding observations from the per-venue history tables
// into the unified store, tracking a per-(venue, source) high-water mark.
type Syncer struct {
	history *store.RollupRepo
	unified *store.UnifiedRepo
	metrics *metrics.Registry
	log     zerolog.Logger

	now func() time.Time
}

// NewSyncer creates the unified syncer.
func NewSyncer(history *store.RollupRepo, unified *store.UnifiedRepo, reg *metrics.Registry, log zerolog.Logger) *Syncer {
	return &Syncer{
		history: history,
		unified: unified,
		metrics: reg,
		log:     log.With().Str("component", "unified_sync").Logger(),
		now:     time.Now,
	}
}

// SyncAll runs one live-source pass over every venue. A venue failing does not
// stop the others.
func (s *Syncer) SyncAll(ctx context.Context) error {
	var firstErr error
	for _, v := range venues.All() {
		if err := s.SyncVenue(ctx, v, models.SourceLive, 0); err != nil {
			s.log.Error().Err(err).Str("venue", string(v)).Msg("Venue sync failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SyncVenue ingests one venue's new history rows. lookback overrides the
// default initial look-back when positive; import-source backfills pass a
// larger one.
func (s *Syncer) SyncVenue(ctx context.Context, v venues.Venue, source string, lookback time.Duration) error {
	last, err := s.unified.LastSync(ctx, string(v), source)
	if err != nil {
		return err
	}
	if last == 0 {
		lb := initialLookback
		if lookback > 0 {
			lb = lookback
		}
		last = s.now().Add(-lb).Unix()
	}

	aggs, err := s.history.FundingHistorySince(ctx, string(v), last, fetchLimit)
	if err != nil {
		return err
	}
	if len(aggs) == 0 {
		return nil
	}

	rows := make([]models.UnifiedRow, 0, len(aggs))
	highWater := last
	dropped := 0
	for _, a := range aggs {
		ft := NormalizeTimestamp(a.Bucket)
		if ft > highWater {
			highWater = ft
		}

		rawPct := funding.RawPercent(v, a.AvgFundingRate)
		if !funding.WithinBounds(rawPct) {
			dropped++
			continue
		}

		rate, err := funding.Normalize(v, a.AvgFundingRate, 0)
		if err != nil {
			return fmt.Errorf("failed to normalize %s rate: %w", v, err)
		}

		normalized := a.NormalizedSymbol
		if normalized == "" {
			normalized = symbols.Normalize(a.Symbol)
		}

		rows = append(rows, models.UnifiedRow{
			NormalizedSymbol: normalized,
			Venue:            string(v),
			FundingTime:      ft,
			Symbol:           a.Symbol,
			RateRaw:          a.AvgFundingRate,
			RateRawPercent:   rawPct,
			IntervalHours:    rate.IntervalHours,
			Rate1hPercent:    rate.HourlyPercent,
			RateAPR:          rate.APRPercent,
			Source:           source,
			OpenInterest:     a.AvgOIUSD,
		})
	}

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.unified.UpsertBatch(ctx, rows[start:end]); err != nil {
			return err
		}
	}

	if err := s.unified.SetLastSync(ctx, string(v), source, highWater); err != nil {
		return err
	}

	s.metrics.UnifiedSynced.WithLabelValues(string(v)).Add(float64(len(rows)))
	if dropped > 0 {
		s.metrics.RowsDropped.WithLabelValues("rate_bounds").Add(float64(dropped))
	}
	s.log.Info().Str("venue", string(v)).Str("source", source).
		Int("rows", len(rows)).Int("dropped", dropped).Int64("high_water", highWater).
		Msg("Venue synced")
	return nil
}

// NormalizeTimestamp converts a funding time to seconds, accepting either
// seconds or milliseconds on input.
func NormalizeTimestamp(ts int64) int64 {
	if ts > msThreshold {
		return ts / 1000
	}
	return ts
}
