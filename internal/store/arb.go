package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/perpscan/perpscan/internal/models"
)

// ArbRepo owns the precomputed arbitrage table. The engine clears and
// repopulates it on every pass.
type ArbRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewArbRepo creates an arbitrage repository on the unified store.
func NewArbRepo(db *sqlx.DB, timeout time.Duration) *ArbRepo {
	return &ArbRepo{db: db, timeout: timeout}
}

// Replace clears arbitrage_v3 and inserts the given rows in one transaction,
// so readers never observe a half-rebuilt table.
func (r *ArbRepo) Replace(ctx context.Context, rows []models.ArbRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin arbitrage rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM arbitrage_v3`); err != nil {
		return fmt.Errorf("failed to clear arbitrage table: %w", err)
	}

	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO arbitrage_v3 (
				normalized_symbol, long_venue, short_venue, window_tag,
				long_rate, short_rate, spread, long_apr, short_apr, spread_apr,
				stability_score, is_stable, calculated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())`)
		if err != nil {
			return fmt.Errorf("failed to prepare arbitrage insert: %w", err)
		}
		defer stmt.Close()

		for _, a := range rows {
			_, err = stmt.ExecContext(ctx,
				a.NormalizedSymbol, a.LongVenue, a.ShortVenue, a.Window,
				a.LongRate, a.ShortRate, a.Spread, a.LongAPR, a.ShortAPR, a.SpreadAPR,
				a.StabilityScore, a.IsStable)
			if err != nil {
				return fmt.Errorf("failed to insert arbitrage row %s %s/%s: %w",
					a.NormalizedSymbol, a.LongVenue, a.ShortVenue, err)
			}
		}
	}

	return tx.Commit()
}

// ArbQuery filters the arbitrage table.
type ArbQuery struct {
	NormalizedSymbol string
	Venue            string
	Window           models.MAWindow
	MinSpread        float64
	MinSpreadAPR     float64
	StableOnly       bool
	SortBy           string // "spread", "spread_apr" or "stability"
	Limit            int
}

// List returns arbitrage rows matching the query.
func (r *ArbRepo) List(ctx context.Context, q ArbQuery) ([]models.ArbRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT * FROM arbitrage_v3 WHERE 1=1`
	var args []interface{}
	n := 0

	if q.NormalizedSymbol != "" {
		n++
		query += fmt.Sprintf(" AND normalized_symbol = $%d", n)
		args = append(args, q.NormalizedSymbol)
	}
	if q.Venue != "" {
		n++
		query += fmt.Sprintf(" AND (long_venue = $%d OR short_venue = $%d)", n, n)
		args = append(args, q.Venue)
	}
	if q.Window != "" {
		n++
		query += fmt.Sprintf(" AND window_tag = $%d", n)
		args = append(args, q.Window)
	}
	if q.MinSpread > 0 {
		n++
		query += fmt.Sprintf(" AND spread >= $%d", n)
		args = append(args, q.MinSpread)
	}
	if q.MinSpreadAPR > 0 {
		n++
		query += fmt.Sprintf(" AND spread_apr >= $%d", n)
		args = append(args, q.MinSpreadAPR)
	}
	if q.StableOnly {
		query += " AND is_stable"
	}

	switch q.SortBy {
	case "spread":
		query += " ORDER BY spread DESC"
	case "stability":
		query += " ORDER BY stability_score DESC, spread_apr DESC"
	default:
		query += " ORDER BY spread_apr DESC"
	}

	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, q.Limit)

	var out []models.ArbRow
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query arbitrage rows: %w", err)
	}
	return out, nil
}
