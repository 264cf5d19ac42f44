package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/perpscan/perpscan/internal/models"
)

// UnifiedRepo owns the cross-venue unified funding table and its sync state.
type UnifiedRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewUnifiedRepo creates a unified-table repository on the unified store.
func NewUnifiedRepo(db *sqlx.DB, timeout time.Duration) *UnifiedRepo {
	return &UnifiedRepo{db: db, timeout: timeout}
}

// LastSync returns the maximum collected_at (seconds) already ingested for a
// venue and source, or 0 when the venue has never been synced.
func (r *UnifiedRepo) LastSync(ctx context.Context, venue, source string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var last int64
	err := r.db.GetContext(ctx, &last,
		`SELECT last_collected_at FROM unified_sync_state WHERE venue = $1 AND source = $2`,
		venue, source)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read sync state for %s: %w", venue, err)
	}
	return last, nil
}

// SetLastSync records the sync high-water mark for a venue and source.
func (r *UnifiedRepo) SetLastSync(ctx context.Context, venue, source string, collectedAt int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO unified_sync_state (venue, source, last_collected_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (venue, source) DO UPDATE SET
			last_collected_at = GREATEST(unified_sync_state.last_collected_at, EXCLUDED.last_collected_at),
			updated_at = now()`,
		venue, source, collectedAt)
	if err != nil {
		return fmt.Errorf("failed to set sync state for %s: %w", venue, err)
	}
	return nil
}

// UpsertBatch writes unified rows keyed by (normalized symbol, venue, funding
// time) in one transaction. Callers keep batches at or below 500 rows.
func (r *UnifiedRepo) UpsertBatch(ctx context.Context, rows []models.UnifiedRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin unified upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO unified_v3 (
			normalized_symbol, venue, funding_time, symbol,
			rate_raw, rate_raw_percent, interval_hours, rate_1h_percent, rate_apr,
			source, synced_at, open_interest
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), $11)
		ON CONFLICT (normalized_symbol, venue, funding_time) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			rate_raw = EXCLUDED.rate_raw,
			rate_raw_percent = EXCLUDED.rate_raw_percent,
			interval_hours = EXCLUDED.interval_hours,
			rate_1h_percent = EXCLUDED.rate_1h_percent,
			rate_apr = EXCLUDED.rate_apr,
			source = EXCLUDED.source,
			synced_at = now(),
			open_interest = EXCLUDED.open_interest`)
	if err != nil {
		return fmt.Errorf("failed to prepare unified upsert: %w", err)
	}
	defer stmt.Close()

	for _, u := range rows {
		_, err = stmt.ExecContext(ctx,
			u.NormalizedSymbol, u.Venue, u.FundingTime, u.Symbol,
			u.RateRaw, u.RateRawPercent, u.IntervalHours, u.Rate1hPercent, u.RateAPR,
			u.Source, u.OpenInterest)
		if err != nil {
			return fmt.Errorf("failed to upsert unified row %s/%s@%d: %w",
				u.NormalizedSymbol, u.Venue, u.FundingTime, err)
		}
	}

	return tx.Commit()
}

// RatesQuery filters unified funding rows.
type RatesQuery struct {
	NormalizedSymbol string
	Venues           []string
	FromSec          int64
	ToSec            int64
	Limit            int
}

// Rates returns unified rows matching the query, newest first.
func (r *UnifiedRepo) Rates(ctx context.Context, q RatesQuery) ([]models.UnifiedRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT * FROM unified_v3 WHERE normalized_symbol = $1`
	args := []interface{}{q.NormalizedSymbol}
	n := 1

	if len(q.Venues) > 0 {
		placeholders := make([]string, len(q.Venues))
		for i, v := range q.Venues {
			n++
			placeholders[i] = fmt.Sprintf("$%d", n)
			args = append(args, v)
		}
		query += fmt.Sprintf(" AND venue IN (%s)", strings.Join(placeholders, ", "))
	}
	if q.FromSec > 0 {
		n++
		query += fmt.Sprintf(" AND funding_time >= $%d", n)
		args = append(args, q.FromSec)
	}
	if q.ToSec > 0 {
		n++
		query += fmt.Sprintf(" AND funding_time <= $%d", n)
		args = append(args, q.ToSec)
	}
	n++
	query += fmt.Sprintf(" ORDER BY funding_time DESC LIMIT $%d", n)
	args = append(args, q.Limit)

	var out []models.UnifiedRow
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query unified rates: %w", err)
	}
	return out, nil
}

// VenueStats summarizes one venue's funding over a window.
type VenueStats struct {
	Venue       string  `db:"venue" json:"venue"`
	AvgRate1h   float64 `db:"avg_rate_1h" json:"avg_rate_1h"`
	AvgAPR      float64 `db:"avg_apr" json:"avg_apr"`
	MinRate1h   float64 `db:"min_rate_1h" json:"min_rate_1h"`
	MaxRate1h   float64 `db:"max_rate_1h" json:"max_rate_1h"`
	SampleCount int64   `db:"sample_count" json:"sample_count"`
}

// Summary computes per-venue stats for one symbol since fromSec.
func (r *UnifiedRepo) Summary(ctx context.Context, normalized string, fromSec int64) ([]VenueStats, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []VenueStats
	err := r.db.SelectContext(ctx, &out, `
		SELECT venue,
			AVG(rate_1h_percent) AS avg_rate_1h,
			AVG(rate_apr) AS avg_apr,
			MIN(rate_1h_percent) AS min_rate_1h,
			MAX(rate_1h_percent) AS max_rate_1h,
			COUNT(*) AS sample_count
		FROM unified_v3
		WHERE normalized_symbol = $1 AND funding_time >= $2
		GROUP BY venue
		ORDER BY venue`, normalized, fromSec)
	if err != nil {
		return nil, fmt.Errorf("failed to query funding summary: %w", err)
	}
	return out, nil
}

// RateSample is one funding observation as consumed by the MA engine.
type RateSample struct {
	NormalizedSymbol string  `db:"normalized_symbol"`
	Venue            string  `db:"venue"`
	Rate1hPercent    float64 `db:"rate_1h_percent"`
}

// WindowSamples returns every rate_1h_percent sample inside [fromSec, toSec]
// across all (symbol, venue) pairs, ordered by pair then funding time. One
// query feeds a whole MA window; the engine groups rows in memory.
func (r *UnifiedRepo) WindowSamples(ctx context.Context, fromSec, toSec int64) ([]RateSample, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []RateSample
	err := r.db.SelectContext(ctx, &out, `
		SELECT normalized_symbol, venue, rate_1h_percent FROM unified_v3
		WHERE funding_time >= $1 AND funding_time <= $2
		ORDER BY normalized_symbol, venue, funding_time ASC`, fromSec, toSec)
	if err != nil {
		return nil, fmt.Errorf("failed to query window samples: %w", err)
	}
	return out, nil
}

// SymbolVenue is one (normalized symbol, venue) pair present in the table.
type SymbolVenue struct {
	NormalizedSymbol string `db:"normalized_symbol"`
	Venue            string `db:"venue"`
	FirstSeen        int64  `db:"first_seen"`
	LastSeen         int64  `db:"last_seen"`
}

// ActivePairs lists the (symbol, venue) pairs with any funding row at or after
// fromSec, with their earliest and latest observed funding times.
func (r *UnifiedRepo) ActivePairs(ctx context.Context, fromSec int64) ([]SymbolVenue, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []SymbolVenue
	err := r.db.SelectContext(ctx, &out, `
		SELECT normalized_symbol, venue,
			MIN(funding_time) AS first_seen,
			MAX(funding_time) AS last_seen
		FROM unified_v3
		GROUP BY normalized_symbol, venue
		HAVING MAX(funding_time) >= $1
		ORDER BY normalized_symbol, venue`, fromSec)
	if err != nil {
		return nil, fmt.Errorf("failed to list active pairs: %w", err)
	}
	return out, nil
}

// FirstSeen returns the earliest funding time for a (symbol, venue) pair, or
// 0 when none exists. Backs the MA eligibility gate.
func (r *UnifiedRepo) FirstSeen(ctx context.Context, normalized, venue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var first *int64
	err := r.db.GetContext(ctx, &first, `
		SELECT MIN(funding_time) FROM unified_v3
		WHERE normalized_symbol = $1 AND venue = $2`, normalized, venue)
	if err != nil {
		return 0, fmt.Errorf("failed to query first seen: %w", err)
	}
	if first == nil {
		return 0, nil
	}
	return *first, nil
}

// LatestPerVenue returns the most recent unified row per venue for a symbol
// with funding_time >= sinceSec. Feeds the arbitrage live window.
func (r *UnifiedRepo) LatestPerVenue(ctx context.Context, normalized string, sinceSec int64) ([]models.UnifiedRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.UnifiedRow
	err := r.db.SelectContext(ctx, &out, `
		SELECT DISTINCT ON (venue) *
		FROM unified_v3
		WHERE normalized_symbol = $1 AND funding_time >= $2
		ORDER BY venue, funding_time DESC`, normalized, sinceSec)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest per venue: %w", err)
	}
	return out, nil
}

// LatestOpenInterest returns the most recent non-zero open interest recorded
// for a (symbol, venue) pair, or 0 when unknown.
func (r *UnifiedRepo) LatestOpenInterest(ctx context.Context, normalized, venue string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var oi *float64
	err := r.db.GetContext(ctx, &oi, `
		SELECT open_interest FROM unified_v3
		WHERE normalized_symbol = $1 AND venue = $2 AND open_interest > 0
		ORDER BY funding_time DESC
		LIMIT 1`, normalized, venue)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query latest open interest: %w", err)
	}
	if oi == nil {
		return 0, nil
	}
	return *oi, nil
}
