package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/perpscan/perpscan/internal/models"
)

// MarketsRepo serves the read-only market queries over the live view and the
// aggregate tables.
type MarketsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMarketsRepo creates a markets repository on the primary store.
func NewMarketsRepo(db *sqlx.DB, timeout time.Duration) *MarketsRepo {
	return &MarketsRepo{db: db, timeout: timeout}
}

// TokenFilter filters the normalized live view.
type TokenFilter struct {
	NormalizedSymbol string
	Venue            string
	MinOIUSD         float64
	Limit            int
}

// ListNormalizedTokens returns live-view rows matching the filter, largest
// open interest first.
func (r *MarketsRepo) ListNormalizedTokens(ctx context.Context, f TokenFilter) ([]models.NormalizedToken, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT * FROM normalized_tokens WHERE 1=1`
	var args []interface{}
	n := 0

	if f.NormalizedSymbol != "" {
		n++
		query += fmt.Sprintf(" AND normalized_symbol = $%d", n)
		args = append(args, f.NormalizedSymbol)
	}
	if f.Venue != "" {
		n++
		query += fmt.Sprintf(" AND venue = $%d", n)
		args = append(args, f.Venue)
	}
	if f.MinOIUSD > 0 {
		n++
		query += fmt.Sprintf(" AND open_interest_usd >= $%d", n)
		args = append(args, f.MinOIUSD)
	}
	n++
	query += fmt.Sprintf(" ORDER BY open_interest_usd DESC LIMIT $%d", n)
	args = append(args, f.Limit)

	var out []models.NormalizedToken
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list normalized tokens: %w", err)
	}
	return out, nil
}

// SymbolComparison is the cross-venue snapshot of one base asset.
type SymbolComparison struct {
	NormalizedSymbol string                   `json:"normalized_symbol"`
	Venues           []models.NormalizedToken `json:"venues"`
	TotalOIUSD       float64                  `json:"total_oi_usd"`
	TotalVolume24h   float64                  `json:"total_volume_24h"`
	MinFundingAPR    float64                  `json:"min_funding_apr"`
	MaxFundingAPR    float64                  `json:"max_funding_apr"`
	VenueCount       int                      `json:"venue_count"`
}

// CompareSymbol returns one live-view row per venue for a base asset plus
// aggregated totals.
func (r *MarketsRepo) CompareSymbol(ctx context.Context, normalized string) (*SymbolComparison, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []models.NormalizedToken
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM normalized_tokens
		WHERE normalized_symbol = $1
		ORDER BY venue`, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to compare symbol %s: %w", normalized, err)
	}

	cmp := &SymbolComparison{NormalizedSymbol: normalized, Venues: rows, VenueCount: len(rows)}
	for i, t := range rows {
		cmp.TotalOIUSD += t.OpenInterestUSD
		cmp.TotalVolume24h += t.VolumeQuote24h
		if i == 0 || t.FundingAPR < cmp.MinFundingAPR {
			cmp.MinFundingAPR = t.FundingAPR
		}
		if i == 0 || t.FundingAPR > cmp.MaxFundingAPR {
			cmp.MaxFundingAPR = t.FundingAPR
		}
	}
	return cmp, nil
}

// RawRange returns raw snapshots for a base asset inside [fromMs, toMs],
// resolved to venue-native symbols through the live view.
func (r *MarketsRepo) RawRange(ctx context.Context, normalized string, fromMs, toMs int64, limit int) ([]models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.Snapshot
	err := r.db.SelectContext(ctx, &out, `
		SELECT ms.* FROM market_stats ms
		JOIN normalized_tokens nt ON nt.venue = ms.venue AND nt.symbol = ms.symbol
		WHERE nt.normalized_symbol = $1 AND ms.recorded_at >= $2 AND ms.recorded_at <= $3
		ORDER BY ms.recorded_at ASC
		LIMIT $4`, normalized, fromMs, toMs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw range: %w", err)
	}
	return out, nil
}

// MinuteRange returns minute aggregates for a base asset inside [from, to]
// seconds.
func (r *MarketsRepo) MinuteRange(ctx context.Context, normalized string, fromSec, toSec int64, limit int) ([]models.Aggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.Aggregate
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM market_stats_1m
		WHERE normalized_symbol = $1 AND bucket_ts >= $2 AND bucket_ts <= $3
		ORDER BY bucket_ts ASC
		LIMIT $4`, normalized, fromSec, toSec, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query minute range: %w", err)
	}
	return out, nil
}

// HourRange returns hour aggregates for a base asset inside [from, to]
// seconds.
func (r *MarketsRepo) HourRange(ctx context.Context, normalized string, fromSec, toSec int64, limit int) ([]models.Aggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.Aggregate
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM market_history
		WHERE normalized_symbol = $1 AND bucket_ts >= $2 AND bucket_ts <= $3
		ORDER BY bucket_ts ASC
		LIMIT $4`, normalized, fromSec, toSec, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query hour range: %w", err)
	}
	return out, nil
}

// MinuteRangeAsHours aggregates minute rows into hour buckets on the fly.
// Fills the gap between the last permanent hour row and now, where minute
// rows have not been compacted yet.
func (r *MarketsRepo) MinuteRangeAsHours(ctx context.Context, normalized string, fromSec, toSec int64) ([]models.Aggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.Aggregate
	err := r.db.SelectContext(ctx, &out, `
		SELECT
			venue,
			symbol,
			MAX(normalized_symbol) AS normalized_symbol,
			(bucket_ts / 3600) * 3600 AS bucket_ts,
			SUM(avg_mark_price * sample_count) / NULLIF(SUM(sample_count), 0) AS avg_mark_price,
			MIN(min_price) AS min_price,
			MAX(max_price) AS max_price,
			0 AS price_volatility,
			SUM(volume_base_24h) AS volume_base_24h,
			SUM(volume_quote_24h) AS volume_quote_24h,
			SUM(avg_oi_usd * sample_count) / NULLIF(SUM(sample_count), 0) AS avg_oi_usd,
			MAX(max_oi_usd) AS max_oi_usd,
			SUM(avg_funding_rate * sample_count) / NULLIF(SUM(sample_count), 0) AS avg_funding_rate,
			MIN(min_funding_rate) AS min_funding_rate,
			MAX(max_funding_rate) AS max_funding_rate,
			SUM(avg_funding_apr * sample_count) / NULLIF(SUM(sample_count), 0) AS avg_funding_apr,
			SUM(sample_count) AS sample_count
		FROM market_stats_1m
		WHERE normalized_symbol = $1 AND bucket_ts >= $2 AND bucket_ts <= $3
		GROUP BY venue, symbol, (bucket_ts / 3600)
		ORDER BY bucket_ts ASC`, normalized, fromSec, toSec)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate minute rows on the fly: %w", err)
	}
	return out, nil
}
