package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpscan/perpscan/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestSnapshotInsertBatchCommits(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepo(db, time.Second)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO market_stats")
	prep.ExpectExec().
		WithArgs("lighter", "ETH", 3200.0, 0.0, 12.0, 38400.0, 0.0, 0.004, 1.0,
			0.0, 0.0, 0.0, 0.0, 0.0, int64(1700000010000)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.InsertBatch(context.Background(), []models.Snapshot{{
		Venue:           "lighter",
		Symbol:          "ETH",
		MarkPrice:       3200.0,
		OpenInterest:    12.0,
		OpenInterestUSD: 38400.0,
		FundingRate:     0.004,
		FundingInterval: 1,
		RecordedAt:      1700000010000,
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotInsertBatchEmptySkipsDB(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepo(db, time.Second)

	require.NoError(t, repo.InsertBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRangeScanBuildsPlaceholders(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepo(db, time.Second)

	mock.ExpectQuery(`SELECT \* FROM market_stats WHERE venue = \$1 AND symbol = \$2 AND recorded_at >= \$3 AND recorded_at <= \$4 ORDER BY recorded_at ASC LIMIT \$5`).
		WithArgs("edgex", "BTCUSD", int64(1700000000000), int64(1700003600000), 100).
		WillReturnRows(sqlmock.NewRows([]string{"venue", "symbol"}).AddRow("edgex", "BTCUSD"))

	rows, err := repo.RangeScan(context.Background(), "edgex", "BTCUSD", 1700000000000, 1700003600000, 100)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "BTCUSD", rows[0].Symbol)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnifiedLastSyncNeverSynced(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUnifiedRepo(db, time.Second)

	mock.ExpectQuery("SELECT last_collected_at FROM unified_sync_state").
		WithArgs("paradex", models.SourceLive).
		WillReturnRows(sqlmock.NewRows([]string{"last_collected_at"}))

	last, err := repo.LastSync(context.Background(), "paradex", models.SourceLive)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestUnifiedSetLastSyncKeepsHighWater(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUnifiedRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO unified_sync_state").
		WithArgs("paradex", models.SourceLive, int64(1700000400)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetLastSync(context.Background(), "paradex", models.SourceLive, 1700000400)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnifiedRatesVenueFilter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUnifiedRepo(db, time.Second)

	mock.ExpectQuery(`SELECT \* FROM unified_v3 WHERE normalized_symbol = \$1 AND venue IN \(\$2, \$3\) AND funding_time >= \$4 ORDER BY funding_time DESC LIMIT \$5`).
		WithArgs("BTC", "hyperliquid", "aster", int64(1700000000), 500).
		WillReturnRows(sqlmock.NewRows([]string{"normalized_symbol", "venue"}).
			AddRow("BTC", "aster"))

	rows, err := repo.Rates(context.Background(), RatesQuery{
		NormalizedSymbol: "BTC",
		Venues:           []string{"hyperliquid", "aster"},
		FromSec:          1700000000,
		Limit:            500,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "aster", rows[0].Venue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnifiedLatestOpenInterestUnknownPair(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUnifiedRepo(db, time.Second)

	mock.ExpectQuery("SELECT open_interest FROM unified_v3").
		WithArgs("DOGE", "variational").
		WillReturnRows(sqlmock.NewRows([]string{"open_interest"}))

	oi, err := repo.LatestOpenInterest(context.Background(), "DOGE", "variational")
	require.NoError(t, err)
	assert.Equal(t, 0.0, oi)
}

func TestStatusUpsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStatusRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO tracker_status").
		WithArgs("pacifica", "running", sqlmock.AnyArg(), "", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), models.TrackerStatus{
		Venue:          "pacifica",
		Status:         "running",
		LastMessageAt:  time.Now(),
		ReconnectCount: 2,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFundingHistorySinceUnionsBothTables(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRollupRepo(db, time.Second)

	cols := []string{"venue", "symbol", "normalized_symbol", "bucket_ts",
		"avg_funding_rate", "avg_funding_apr", "avg_oi_usd", "sample_count"}
	mock.ExpectQuery("FROM market_history(?s:.*)UNION ALL(?s:.*)FROM market_stats_1m").
		WithArgs("aster", int64(1700000000), 5000).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("aster", "BTCUSDT", "BTC", int64(1700000400), 0.0001, 10.95, 1e6, int64(4)))

	rows, err := repo.FundingHistorySince(context.Background(), "aster", 1700000000, 5000)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1700000400), rows[0].Bucket)
	assert.NoError(t, mock.ExpectationsWereMet())
}
