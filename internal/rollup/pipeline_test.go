package rollup

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
	"github.com/perpscan/perpscan/internal/store"
)

func newTestPipeline(t *testing.T, now time.Time) (*Pipeline, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := New(store.NewRollupRepo(sqlx.NewDb(db, "postgres"), time.Second),
		metrics.NewRegistry(), zerolog.Nop())
	p.now = func() time.Time { return now }
	return p, mock
}

var aggregateCols = []string{
	"venue", "symbol", "bucket_ts",
	"avg_mark_price", "min_price", "max_price", "price_volatility",
	"volume_base_24h", "volume_quote_24h", "avg_oi_usd", "max_oi_usd",
	"avg_funding_rate", "min_funding_rate", "max_funding_rate", "avg_funding_apr",
	"sample_count",
}

// A batch must never end mid-minute: the partial minute row it writes would
// be overwritten, not merged, when the minute's remaining samples roll up.
func TestRollupMinutesAlignsBatchToMinuteBoundary(t *testing.T) {
	// 12:05:07-style instant: lag cutoff lands mid-minute and must be floored.
	p, mock := newTestPipeline(t, time.Unix(1700000707, 0))

	oldest := int64(1699999210000)
	wantFrom := int64(1699999200000) // hour-aligned batch start
	wantTo := int64(1700000400000)   // (now - 5m) floored to the minute

	mock.ExpectQuery(`SELECT MIN\(recorded_at\) FROM market_stats`).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(oldest))
	mock.ExpectBegin()
	mock.ExpectQuery("FROM market_stats").
		WithArgs(wantFrom, wantTo).
		WillReturnRows(sqlmock.NewRows(aggregateCols))
	mock.ExpectExec("DELETE FROM market_stats").
		WithArgs(wantFrom, wantTo).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT MIN\(recorded_at\) FROM market_stats`).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	_, err := p.RollupMinutes(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The hour that just ended stays uncompacted until the next run: its tail
// minutes can lag behind the minute stage, and an early hour row would later
// be replaced by one built from the tail alone.
func TestRollupHoursExcludesLatestHour(t *testing.T) {
	p, mock := newTestPipeline(t, time.Unix(1700003000, 0))

	wantCutoff := int64(1699999200) // one hour before the current hour start

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO market_history").
		WithArgs(wantCutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM market_stats_1m").
		WithArgs(wantCutoff).
		WillReturnResult(sqlmock.NewResult(0, 120))
	mock.ExpectCommit()

	n, err := p.RollupHours(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
