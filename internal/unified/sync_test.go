package unified

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpscan/perpscan/internal/metrics"
	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/store"
	"github.com/perpscan/perpscan/internal/venues"
)

func TestNormalizeTimestamp(t *testing.T) {
	// Seconds pass through.
	assert.Equal(t, int64(1700000000), NormalizeTimestamp(1700000000))
	// Milliseconds are divided down.
	assert.Equal(t, int64(1700000000), NormalizeTimestamp(1700000000123))
	assert.Equal(t, int64(0), NormalizeTimestamp(0))
}

func newTestSyncer(t *testing.T) (*Syncer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sdb := sqlx.NewDb(db, "postgres")
	s := NewSyncer(
		store.NewRollupRepo(sdb, time.Second),
		store.NewUnifiedRepo(sdb, time.Second),
		metrics.NewRegistry(),
		zerolog.Nop(),
	)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s, mock
}

func TestSyncVenueFiltersAndAdvancesHighWater(t *testing.T) {
	s, mock := newTestSyncer(t)

	mock.ExpectQuery("SELECT last_collected_at FROM unified_sync_state").
		WithArgs("hyperliquid", models.SourceLive).
		WillReturnRows(sqlmock.NewRows([]string{"last_collected_at"}).AddRow(int64(1699990000)))

	histCols := []string{
		"venue", "symbol", "normalized_symbol", "bucket_ts",
		"avg_funding_rate", "avg_funding_apr", "avg_oi_usd", "sample_count",
	}
	mock.ExpectQuery("FROM market_history").
		WithArgs("hyperliquid", int64(1699990000), 5000).
		WillReturnRows(sqlmock.NewRows(histCols).
			// Passes the |raw %| <= 10 filter.
			AddRow("hyperliquid", "BTC", "BTC", int64(1699993600), 0.0001, 10.95, 90000000.0, int64(4)).
			// 0.5 raw = 50% per interval, dropped.
			AddRow("hyperliquid", "DOGE", "DOGE", int64(1699997200), 0.5, 0.0, 1000.0, int64(4)))

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO unified_v3").
		ExpectExec().
		WithArgs("BTC", "hyperliquid", int64(1699993600), "BTC",
			0.0001, 0.01, 8.0, sqlmock.AnyArg(), sqlmock.AnyArg(),
			models.SourceLive, 90000000.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	// High water advances past the dropped row too.
	mock.ExpectExec("INSERT INTO unified_sync_state").
		WithArgs("hyperliquid", models.SourceLive, int64(1699997200)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SyncVenue(context.Background(), venues.Hyperliquid, models.SourceLive, 0)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncVenueSeedsLookbackWhenNeverSynced(t *testing.T) {
	s, mock := newTestSyncer(t)

	mock.ExpectQuery("SELECT last_collected_at FROM unified_sync_state").
		WithArgs("lighter", models.SourceLive).
		WillReturnRows(sqlmock.NewRows([]string{"last_collected_at"}))

	// now - 7d.
	wantSince := int64(1700000000) - 7*24*3600
	mock.ExpectQuery("FROM market_history").
		WithArgs("lighter", wantSince, 5000).
		WillReturnRows(sqlmock.NewRows([]string{"venue"}))

	err := s.SyncVenue(context.Background(), venues.Lighter, models.SourceLive, 0)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
