package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/perpscan/perpscan/internal/models"
)

// StatusRepo owns the per-venue tracker_status rows.
type StatusRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewStatusRepo creates a collector-status repository on the primary store.
func NewStatusRepo(db *sqlx.DB, timeout time.Duration) *StatusRepo {
	return &StatusRepo{db: db, timeout: timeout}
}

// Upsert writes one venue's status row, last-writer-wins.
func (r *StatusRepo) Upsert(ctx context.Context, st models.TrackerStatus) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tracker_status (venue, status, last_message_at, last_error, reconnect_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (venue) DO UPDATE SET
			status = EXCLUDED.status,
			last_message_at = EXCLUDED.last_message_at,
			last_error = EXCLUDED.last_error,
			reconnect_count = EXCLUDED.reconnect_count,
			updated_at = now()`,
		st.Venue, st.Status, st.LastMessageAt, st.LastError, st.ReconnectCount)
	if err != nil {
		return fmt.Errorf("failed to upsert tracker status for %s: %w", st.Venue, err)
	}
	return nil
}

// Get returns the status row for one venue.
func (r *StatusRepo) Get(ctx context.Context, venue string) (*models.TrackerStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var st models.TrackerStatus
	err := r.db.GetContext(ctx, &st, `SELECT * FROM tracker_status WHERE venue = $1`, venue)
	if err != nil {
		return nil, fmt.Errorf("failed to get tracker status for %s: %w", venue, err)
	}
	return &st, nil
}

// List returns all venue status rows.
func (r *StatusRepo) List(ctx context.Context) ([]models.TrackerStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.TrackerStatus
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM tracker_status ORDER BY venue`); err != nil {
		return nil, fmt.Errorf("failed to list tracker status: %w", err)
	}
	return out, nil
}
