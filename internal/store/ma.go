package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/perpscan/perpscan/internal/models"
)

// MARepo owns the precomputed moving-average tables.
type MARepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMARepo creates a moving-average repository on the unified store.
func NewMARepo(db *sqlx.DB, timeout time.Duration) *MARepo {
	return &MARepo{db: db, timeout: timeout}
}

// UpsertBatch writes per-venue MA rows in one transaction.
func (r *MARepo) UpsertBatch(ctx context.Context, rows []models.MARow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin MA upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO funding_ma (
			normalized_symbol, venue, window_tag,
			ma_rate_1h, ma_apr, sample_count, stddev, min_rate, max_rate,
			window_start, window_end, calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (normalized_symbol, venue, window_tag) DO UPDATE SET
			ma_rate_1h = EXCLUDED.ma_rate_1h,
			ma_apr = EXCLUDED.ma_apr,
			sample_count = EXCLUDED.sample_count,
			stddev = EXCLUDED.stddev,
			min_rate = EXCLUDED.min_rate,
			max_rate = EXCLUDED.max_rate,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			calculated_at = now()`)
	if err != nil {
		return fmt.Errorf("failed to prepare MA upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range rows {
		_, err = stmt.ExecContext(ctx,
			m.NormalizedSymbol, m.Venue, m.Window,
			m.MARate1h, m.MAAPR, m.SampleCount, m.StdDev, m.MinRate, m.MaxRate,
			m.WindowStart, m.WindowEnd)
		if err != nil {
			return fmt.Errorf("failed to upsert MA row %s/%s/%s: %w",
				m.NormalizedSymbol, m.Venue, m.Window, err)
		}
	}

	return tx.Commit()
}

// RefreshCross rebuilds funding_ma_cross from the per-venue table in a single
// statement: for each (symbol, window) with rows from at least two venues it
// stores the simple average, the sample-count-weighted average, per-venue
// min/max and the spread between them.
func (r *MARepo) RefreshCross(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO funding_ma_cross (
			normalized_symbol, window_tag, avg_rate_1h, weighted_rate_1h, avg_apr,
			min_exchange_ma, max_exchange_ma, spread, exchange_count, calculated_at
		)
		SELECT
			normalized_symbol,
			window_tag,
			AVG(ma_rate_1h),
			SUM(ma_rate_1h * sample_count) / NULLIF(SUM(sample_count), 0),
			AVG(ma_apr),
			MIN(ma_rate_1h),
			MAX(ma_rate_1h),
			MAX(ma_rate_1h) - MIN(ma_rate_1h),
			COUNT(DISTINCT venue),
			now()
		FROM funding_ma
		GROUP BY normalized_symbol, window_tag
		HAVING COUNT(DISTINCT venue) >= 2
		ON CONFLICT (normalized_symbol, window_tag) DO UPDATE SET
			avg_rate_1h = EXCLUDED.avg_rate_1h,
			weighted_rate_1h = EXCLUDED.weighted_rate_1h,
			avg_apr = EXCLUDED.avg_apr,
			min_exchange_ma = EXCLUDED.min_exchange_ma,
			max_exchange_ma = EXCLUDED.max_exchange_ma,
			spread = EXCLUDED.spread,
			exchange_count = EXCLUDED.exchange_count,
			calculated_at = now()`)
	if err != nil {
		return fmt.Errorf("failed to refresh cross-venue MA: %w", err)
	}
	return nil
}

// RefreshCache rebuilds funding_ma_cache, the latest-MA lookup table backing
// the bulk and latest endpoints.
func (r *MARepo) RefreshCache(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO funding_ma_cache (normalized_symbol, venue, window_tag, ma_rate_1h, ma_apr, sample_count, calculated_at)
		SELECT normalized_symbol, venue, window_tag, ma_rate_1h, ma_apr, sample_count, calculated_at
		FROM funding_ma
		ON CONFLICT (normalized_symbol, venue, window_tag) DO UPDATE SET
			ma_rate_1h = EXCLUDED.ma_rate_1h,
			ma_apr = EXCLUDED.ma_apr,
			sample_count = EXCLUDED.sample_count,
			calculated_at = EXCLUDED.calculated_at`)
	if err != nil {
		return fmt.Errorf("failed to refresh MA cache: %w", err)
	}
	return nil
}

// PerVenue returns MA rows for one symbol and window, optionally one venue.
func (r *MARepo) PerVenue(ctx context.Context, normalized string, window models.MAWindow, venue string) ([]models.MARow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT * FROM funding_ma WHERE normalized_symbol = $1 AND window_tag = $2`
	args := []interface{}{normalized, window}
	if venue != "" {
		query += ` AND venue = $3`
		args = append(args, venue)
	}
	query += ` ORDER BY venue`

	var out []models.MARow
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query per-venue MA: %w", err)
	}
	return out, nil
}

// Cross returns the cross-venue MA row for one symbol and window.
func (r *MARepo) Cross(ctx context.Context, normalized string, window models.MAWindow) (*models.CrossMARow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row models.CrossMARow
	err := r.db.GetContext(ctx, &row, `
		SELECT * FROM funding_ma_cross
		WHERE normalized_symbol = $1 AND window_tag = $2`, normalized, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query cross-venue MA: %w", err)
	}
	return &row, nil
}

// Latest returns the cached latest MA rows for one symbol across all windows,
// optionally restricted to one venue.
func (r *MARepo) Latest(ctx context.Context, normalized, venue string) ([]models.MARow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT normalized_symbol, venue, window_tag, ma_rate_1h, ma_apr, sample_count,
			0 AS stddev, 0 AS min_rate, 0 AS max_rate, 0 AS window_start, 0 AS window_end,
			calculated_at
		FROM funding_ma_cache WHERE normalized_symbol = $1`
	args := []interface{}{normalized}
	if venue != "" {
		query += ` AND venue = $2`
		args = append(args, venue)
	}
	query += ` ORDER BY venue, window_tag`

	var out []models.MARow
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query latest MA: %w", err)
	}
	return out, nil
}

// Bulk returns cached MA rows for many symbols at once, capped at limit.
func (r *MARepo) Bulk(ctx context.Context, symbols []string, window models.MAWindow, limit int) ([]models.MARow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := sqlx.In(`
		SELECT normalized_symbol, venue, window_tag, ma_rate_1h, ma_apr, sample_count,
			0 AS stddev, 0 AS min_rate, 0 AS max_rate, 0 AS window_start, 0 AS window_end,
			calculated_at
		FROM funding_ma_cache
		WHERE normalized_symbol IN (?) AND window_tag = ?
		ORDER BY normalized_symbol, venue
		LIMIT ?`, symbols, window, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build bulk MA query: %w", err)
	}

	var out []models.MARow
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query bulk MA: %w", err)
	}
	return out, nil
}

// AllForWindow returns every per-venue MA row for one window. Feeds the
// arbitrage engine.
func (r *MARepo) AllForWindow(ctx context.Context, window models.MAWindow) ([]models.MARow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.MARow
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM funding_ma WHERE window_tag = $1
		ORDER BY normalized_symbol, venue`, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query MA rows for window %s: %w", window, err)
	}
	return out, nil
}
