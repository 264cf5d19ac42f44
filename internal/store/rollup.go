package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/perpscan/perpscan/internal/models"
)

// RollupRepo is the sole writer of the minute and hour aggregate tables and
// of the normalized-token live view.
type RollupRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRollupRepo creates a rollup repository on the primary store.
func NewRollupRepo(db *sqlx.DB, timeout time.Duration) *RollupRepo {
	return &RollupRepo{db: db, timeout: timeout}
}

// hourlyPercentCase converts a raw funding-rate column to per-hour percent
// using the venue-specific encoding. Lighter already reports percent per hour;
// extended and pacifica report decimal per hour; edgex pays every 4h; aster
// carries its interval per row (default 8h); variational scales by 1000; the
// remaining venues pay every 8h.
const hourlyPercentCase = `
	CASE venue
		WHEN 'lighter' THEN funding_rate
		WHEN 'extended' THEN funding_rate * 100
		WHEN 'pacifica' THEN funding_rate * 100
		WHEN 'edgex' THEN funding_rate / 4 * 100
		WHEN 'aster' THEN funding_rate / (CASE WHEN funding_interval_hours > 0 THEN funding_interval_hours ELSE 8 END) * 100
		WHEN 'variational' THEN funding_rate / 1000 * 100
		ELSE funding_rate / 8 * 100
	END`

// minuteAggregateQuery buckets raw snapshots into minute aggregates for
// recorded_at in [from, to) milliseconds.
var minuteAggregateQuery = fmt.Sprintf(`
	SELECT
		venue,
		symbol,
		(recorded_at / 60000) * 60 AS bucket_ts,
		AVG(mark_price) AS avg_mark_price,
		MIN(mark_price) AS min_price,
		MAX(mark_price) AS max_price,
		CASE WHEN AVG(mark_price) > 0
			THEN (MAX(mark_price) - MIN(mark_price)) / AVG(mark_price) * 100
			ELSE 0 END AS price_volatility,
		SUM(volume_base_24h) AS volume_base_24h,
		SUM(volume_quote_24h) AS volume_quote_24h,
		AVG(open_interest_usd) AS avg_oi_usd,
		MAX(open_interest_usd) AS max_oi_usd,
		AVG(funding_rate) AS avg_funding_rate,
		MIN(funding_rate) AS min_funding_rate,
		MAX(funding_rate) AS max_funding_rate,
		AVG(%s) * 24 * 365 AS avg_funding_apr,
		COUNT(*) AS sample_count
	FROM market_stats
	WHERE recorded_at >= $1 AND recorded_at < $2
	GROUP BY venue, symbol, (recorded_at / 60000)`, hourlyPercentCase)

const minuteInsert = `
	INSERT INTO market_stats_1m (
		venue, symbol, normalized_symbol, bucket_ts,
		avg_mark_price, min_price, max_price, price_volatility,
		volume_base_24h, volume_quote_24h, avg_oi_usd, max_oi_usd,
		avg_funding_rate, min_funding_rate, max_funding_rate, avg_funding_apr,
		sample_count
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (venue, symbol, bucket_ts) DO UPDATE SET
		normalized_symbol = EXCLUDED.normalized_symbol,
		avg_mark_price = EXCLUDED.avg_mark_price,
		min_price = EXCLUDED.min_price,
		max_price = EXCLUDED.max_price,
		price_volatility = EXCLUDED.price_volatility,
		volume_base_24h = EXCLUDED.volume_base_24h,
		volume_quote_24h = EXCLUDED.volume_quote_24h,
		avg_oi_usd = EXCLUDED.avg_oi_usd,
		max_oi_usd = EXCLUDED.max_oi_usd,
		avg_funding_rate = EXCLUDED.avg_funding_rate,
		min_funding_rate = EXCLUDED.min_funding_rate,
		max_funding_rate = EXCLUDED.max_funding_rate,
		avg_funding_apr = EXCLUDED.avg_funding_apr,
		sample_count = EXCLUDED.sample_count`

// OldestSnapshotMs returns the recorded_at of the oldest raw snapshot, or 0
// when the table is empty.
func (r *RollupRepo) OldestSnapshotMs(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var oldest *int64
	if err := r.db.GetContext(ctx, &oldest, `SELECT MIN(recorded_at) FROM market_stats`); err != nil {
		return 0, fmt.Errorf("failed to find oldest snapshot: %w", err)
	}
	if oldest == nil {
		return 0, nil
	}
	return *oldest, nil
}

// RollupMinuteBatch aggregates raw snapshots recorded in [fromMs, toMs) into
// minute rows and deletes the consumed raw rows in the same transaction.
// normalize maps an original symbol to its normalized form. Returns the number
// of minute rows written.
func (r *RollupRepo) RollupMinuteBatch(ctx context.Context, fromMs, toMs int64, normalize func(string) string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin rollup transaction: %w", err)
	}
	defer tx.Rollback()

	var aggs []models.Aggregate
	if err := tx.SelectContext(ctx, &aggs, minuteAggregateQuery, fromMs, toMs); err != nil {
		return 0, fmt.Errorf("failed to aggregate minute batch: %w", err)
	}

	if len(aggs) > 0 {
		stmt, err := tx.PrepareContext(ctx, minuteInsert)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare minute insert: %w", err)
		}
		defer stmt.Close()

		for _, a := range aggs {
			_, err = stmt.ExecContext(ctx,
				a.Venue, a.Symbol, normalize(a.Symbol), a.Bucket,
				a.AvgMarkPrice, a.MinPrice, a.MaxPrice, a.PriceVolatility,
				a.VolumeBase24h, a.VolumeQuote24h, a.AvgOIUSD, a.MaxOIUSD,
				a.AvgFundingRate, a.MinFundingRate, a.MaxFundingRate, a.AvgFundingAPR,
				a.SampleCount)
			if err != nil {
				return 0, fmt.Errorf("failed to insert minute row %s/%s: %w", a.Venue, a.Symbol, err)
			}
		}
	}

	// Only rows covered by the aggregation above are deleted; anything newer
	// stays for the next pass.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM market_stats WHERE recorded_at >= $1 AND recorded_at < $2`, fromMs, toMs); err != nil {
		return 0, fmt.Errorf("failed to delete rolled-up snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit minute rollup: %w", err)
	}
	return len(aggs), nil
}

// RollupHours compacts minute rows with bucket_ts < cutoffSec into hour rows
// using sample-count-weighted averages, then deletes the consumed minute rows.
// Returns the number of hour rows written.
func (r *RollupRepo) RollupHours(ctx context.Context, cutoffSec int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin hour rollup: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO market_history (
			venue, symbol, normalized_symbol, bucket_ts,
			avg_mark_price, min_price, max_price, price_volatility,
			volume_base_24h, volume_quote_24h, avg_oi_usd, max_oi_usd,
			avg_funding_rate, min_funding_rate, max_funding_rate, avg_funding_apr,
			sample_count
		)
		SELECT
			venue,
			symbol,
			MAX(normalized_symbol),
			(bucket_ts / 3600) * 3600 AS hour_ts,
			SUM(avg_mark_price * sample_count) / NULLIF(SUM(sample_count), 0),
			MIN(min_price),
			MAX(max_price),
			CASE WHEN SUM(avg_mark_price * sample_count) > 0
				THEN (MAX(max_price) - MIN(min_price)) / (SUM(avg_mark_price * sample_count) / NULLIF(SUM(sample_count), 0)) * 100
				ELSE 0 END,
			SUM(volume_base_24h),
			SUM(volume_quote_24h),
			SUM(avg_oi_usd * sample_count) / NULLIF(SUM(sample_count), 0),
			MAX(max_oi_usd),
			SUM(avg_funding_rate * sample_count) / NULLIF(SUM(sample_count), 0),
			MIN(min_funding_rate),
			MAX(max_funding_rate),
			SUM(avg_funding_apr * sample_count) / NULLIF(SUM(sample_count), 0),
			SUM(sample_count)
		FROM market_stats_1m
		WHERE bucket_ts < $1
		GROUP BY venue, symbol, (bucket_ts / 3600)
		ON CONFLICT (venue, symbol, bucket_ts) DO UPDATE SET
			normalized_symbol = EXCLUDED.normalized_symbol,
			avg_mark_price = EXCLUDED.avg_mark_price,
			min_price = EXCLUDED.min_price,
			max_price = EXCLUDED.max_price,
			price_volatility = EXCLUDED.price_volatility,
			volume_base_24h = EXCLUDED.volume_base_24h,
			volume_quote_24h = EXCLUDED.volume_quote_24h,
			avg_oi_usd = EXCLUDED.avg_oi_usd,
			max_oi_usd = EXCLUDED.max_oi_usd,
			avg_funding_rate = EXCLUDED.avg_funding_rate,
			min_funding_rate = EXCLUDED.min_funding_rate,
			max_funding_rate = EXCLUDED.max_funding_rate,
			avg_funding_apr = EXCLUDED.avg_funding_apr,
			sample_count = EXCLUDED.sample_count`, cutoffSec)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate hour rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM market_stats_1m WHERE bucket_ts < $1`, cutoffSec); err != nil {
		return 0, fmt.Errorf("failed to delete consumed minute rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit hour rollup: %w", err)
	}

	n, _ := res.RowsAffected()
	return int(n), nil
}

// ActiveLatestSnapshots returns the most recent raw snapshot per
// (venue, symbol) with recorded_at >= sinceMs. Feeds the live-view refresh.
func (r *RollupRepo) ActiveLatestSnapshots(ctx context.Context, sinceMs int64) ([]models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.Snapshot
	err := r.db.SelectContext(ctx, &out, `
		SELECT DISTINCT ON (venue, symbol) *
		FROM market_stats
		WHERE recorded_at >= $1
		ORDER BY venue, symbol, id DESC`, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query active snapshots: %w", err)
	}
	return out, nil
}

// UpsertNormalizedTokens writes the live-view rows in one transaction.
func (r *RollupRepo) UpsertNormalizedTokens(ctx context.Context, rows []models.NormalizedToken) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin live-view upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO normalized_tokens (
			normalized_symbol, venue, symbol, mark_price, index_price,
			open_interest, open_interest_usd, volume_quote_24h,
			funding_rate, funding_rate_1h, funding_apr,
			atr_14, volatility_24h, volatility_7d, bollinger_width, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
		ON CONFLICT (normalized_symbol, venue) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			mark_price = EXCLUDED.mark_price,
			index_price = EXCLUDED.index_price,
			open_interest = EXCLUDED.open_interest,
			open_interest_usd = EXCLUDED.open_interest_usd,
			volume_quote_24h = EXCLUDED.volume_quote_24h,
			funding_rate = EXCLUDED.funding_rate,
			funding_rate_1h = EXCLUDED.funding_rate_1h,
			funding_apr = EXCLUDED.funding_apr,
			atr_14 = EXCLUDED.atr_14,
			volatility_24h = EXCLUDED.volatility_24h,
			volatility_7d = EXCLUDED.volatility_7d,
			bollinger_width = EXCLUDED.bollinger_width,
			updated_at = now()`)
	if err != nil {
		return fmt.Errorf("failed to prepare live-view upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range rows {
		_, err = stmt.ExecContext(ctx,
			t.NormalizedSymbol, t.Venue, t.Symbol, t.MarkPrice, t.IndexPrice,
			t.OpenInterest, t.OpenInterestUSD, t.VolumeQuote24h,
			t.FundingRate, t.FundingRate1h, t.FundingAPR,
			t.ATR14, t.Volatility24h, t.Volatility7d, t.BollingerWidth)
		if err != nil {
			return fmt.Errorf("failed to upsert live view %s/%s: %w", t.NormalizedSymbol, t.Venue, err)
		}
	}

	return tx.Commit()
}

// UpsertVolatilityStats mirrors the per-(venue, symbol) volatility figures
// into their companion table.
func (r *RollupRepo) UpsertVolatilityStats(ctx context.Context, rows []models.NormalizedToken) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin volatility upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO volatility_stats (venue, symbol, atr_14, volatility_24h, volatility_7d, bollinger_width, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (venue, symbol) DO UPDATE SET
			atr_14 = EXCLUDED.atr_14,
			volatility_24h = EXCLUDED.volatility_24h,
			volatility_7d = EXCLUDED.volatility_7d,
			bollinger_width = EXCLUDED.bollinger_width,
			updated_at = now()`)
	if err != nil {
		return fmt.Errorf("failed to prepare volatility upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range rows {
		if _, err = stmt.ExecContext(ctx, t.Venue, t.Symbol, t.ATR14, t.Volatility24h, t.Volatility7d, t.BollingerWidth); err != nil {
			return fmt.Errorf("failed to upsert volatility stats %s/%s: %w", t.Venue, t.Symbol, err)
		}
	}

	return tx.Commit()
}

// FundingHistorySince returns aggregate funding observations for one venue
// with bucket_ts > sinceSec, oldest first, across the minute and hour tables.
// Feeds the unified sync.
func (r *RollupRepo) FundingHistorySince(ctx context.Context, venue string, sinceSec int64, limit int) ([]models.Aggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.Aggregate
	err := r.db.SelectContext(ctx, &out, `
		SELECT venue, symbol, normalized_symbol, bucket_ts,
			avg_funding_rate, avg_funding_apr, avg_oi_usd, sample_count
		FROM (
			SELECT venue, symbol, normalized_symbol, bucket_ts,
				avg_funding_rate, avg_funding_apr, avg_oi_usd, sample_count
			FROM market_history
			WHERE venue = $1 AND bucket_ts > $2
			UNION ALL
			SELECT venue, symbol, normalized_symbol, bucket_ts,
				avg_funding_rate, avg_funding_apr, avg_oi_usd, sample_count
			FROM market_stats_1m
			WHERE venue = $1 AND bucket_ts > $2
		) h
		ORDER BY bucket_ts ASC
		LIMIT $3`, venue, sinceSec, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query funding history for %s: %w", venue, err)
	}
	return out, nil
}

// HourSeries returns hour aggregates for one (venue, symbol) with
// bucket_ts >= fromSec in ascending bucket order. Used by the volatility
// calculations during the live-view refresh.
func (r *RollupRepo) HourSeries(ctx context.Context, venue, symbol string, fromSec int64) ([]models.Aggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.Aggregate
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM market_history
		WHERE venue = $1 AND symbol = $2 AND bucket_ts >= $3
		ORDER BY bucket_ts ASC`, venue, symbol, fromSec)
	if err != nil {
		return nil, fmt.Errorf("failed to query hour series: %w", err)
	}
	return out, nil
}
