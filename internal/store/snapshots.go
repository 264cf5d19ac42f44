package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/perpscan/perpscan/internal/models"
)

// SnapshotRepo is the append-only store of raw 15-second snapshots.
type SnapshotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotRepo creates a snapshot repository on the primary store.
func NewSnapshotRepo(db *sqlx.DB, timeout time.Duration) *SnapshotRepo {
	return &SnapshotRepo{db: db, timeout: timeout}
}

const snapshotInsert = `
	INSERT INTO market_stats (
		venue, symbol, mark_price, index_price, open_interest, open_interest_usd,
		last_price, funding_rate, funding_interval_hours,
		volume_base_24h, volume_quote_24h, low_24h, high_24h, change_24h_pct, recorded_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

// InsertBatch persists one buffer flush atomically. Either all rows land or
// none do.
func (r *SnapshotRepo) InsertBatch(ctx context.Context, rows []models.Snapshot) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, snapshotInsert)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range rows {
		_, err = stmt.ExecContext(ctx,
			s.Venue, s.Symbol, s.MarkPrice, s.IndexPrice, s.OpenInterest, s.OpenInterestUSD,
			s.LastPrice, s.FundingRate, s.FundingInterval,
			s.VolumeBase24h, s.VolumeQuote24h, s.Low24h, s.High24h, s.Change24hPct, s.RecordedAt)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot %s/%s: %w", s.Venue, s.Symbol, err)
		}
	}

	return tx.Commit()
}

// LatestPerSymbol returns the highest-id snapshot per symbol for a venue,
// optionally restricted to one symbol.
func (r *SnapshotRepo) LatestPerSymbol(ctx context.Context, venue string, symbol string) ([]models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT DISTINCT ON (symbol) *
		FROM market_stats
		WHERE venue = $1`
	args := []interface{}{venue}
	if symbol != "" {
		query += ` AND symbol = $2`
		args = append(args, symbol)
	}
	query += ` ORDER BY symbol, id DESC`

	var out []models.Snapshot
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query latest snapshots: %w", err)
	}
	return out, nil
}

// RangeScan returns snapshots for a venue (and optional symbol) inside
// [from, to] in recorded-at order, capped at limit rows.
func (r *SnapshotRepo) RangeScan(ctx context.Context, venue, symbol string, from, to int64, limit int) ([]models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT * FROM market_stats WHERE venue = $1`
	args := []interface{}{venue}
	n := 1

	if symbol != "" {
		n++
		query += fmt.Sprintf(" AND symbol = $%d", n)
		args = append(args, symbol)
	}
	if from > 0 {
		n++
		query += fmt.Sprintf(" AND recorded_at >= $%d", n)
		args = append(args, from)
	}
	if to > 0 {
		n++
		query += fmt.Sprintf(" AND recorded_at <= $%d", n)
		args = append(args, to)
	}
	n++
	query += fmt.Sprintf(" ORDER BY recorded_at ASC LIMIT $%d", n)
	args = append(args, limit)

	var out []models.Snapshot
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to range-scan snapshots: %w", err)
	}
	return out, nil
}

// DeleteOlderThan removes raw snapshots recorded before cutoff (ms) and
// returns the number of rows deleted.
func (r *SnapshotRepo) DeleteOlderThan(ctx context.Context, cutoffMs int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM market_stats WHERE recorded_at < $1`, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
