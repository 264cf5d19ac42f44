package ma

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
)

func TestComputeBelowMinimumSamples(t *testing.T) {
	_, ok := Compute([]float64{0.01, 0.02}, models.Window24h) // needs 3
	assert.False(t, ok)

	_, ok = Compute(make([]float64, 59), models.Window30d) // needs 60
	assert.False(t, ok)
}

func TestComputePlainAverage(t *testing.T) {
	row, ok := Compute([]float64{0.01, 0.02, 0.03}, models.Window24h)
	require.True(t, ok)

	assert.InDelta(t, 0.02, row.MARate1h, 1e-12)
	assert.InDelta(t, 0.02*24*365, row.MAAPR, 1e-9)
	assert.Equal(t, int64(3), row.SampleCount)
	assert.Equal(t, 0.01, row.MinRate)
	assert.Equal(t, 0.03, row.MaxRate)
	assert.Greater(t, row.StdDev, 0.0)
}

func TestComputeOutlierRefilter(t *testing.T) {
	// Fifteen calm samples and one spike far outside the 3-sigma band.
	samples := make([]float64, 0, 16)
	for i := 0; i < 15; i++ {
		samples = append(samples, 0.01)
	}
	samples = append(samples, 5.0)

	row, ok := Compute(samples, models.Window24h)
	require.True(t, ok)

	// The spike is excluded from the average but still shows in max.
	assert.InDelta(t, 0.01, row.MARate1h, 1e-12)
	assert.Equal(t, int64(15), row.SampleCount)
	assert.Equal(t, 5.0, row.MaxRate)
}

func TestComputeZeroStddevSkipsFilter(t *testing.T) {
	row, ok := Compute([]float64{0.01, 0.01, 0.01, 0.01}, models.Window24h)
	require.True(t, ok)
	assert.Equal(t, 0.01, row.MARate1h)
	assert.Equal(t, 0.0, row.StdDev)
	assert.Equal(t, int64(4), row.SampleCount)
}

// Each window reads the unified table exactly once; pairs are grouped in
// memory rather than queried one by one.
func TestRunQueriesOncePerWindow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sdb := sqlx.NewDb(db, "postgres")

	e := NewEngine(
		store.NewUnifiedRepo(sdb, time.Second),
		store.NewMARepo(sdb, time.Second),
		metrics.NewRegistry(),
		zerolog.Nop(),
	)
	now := time.Unix(1700000000, 0)
	e.now = func() time.Time { return now }

	pairCols := []string{"normalized_symbol", "venue", "first_seen", "last_seen"}
	mock.ExpectQuery(`MIN\(funding_time\) AS first_seen`).
		WithArgs(now.Add(-24 * time.Hour).Unix()).
		WillReturnRows(sqlmock.NewRows(pairCols).
			AddRow("BTC", "hyperliquid", int64(1600000000), int64(1699999900)))

	sampleCols := []string{"normalized_symbol", "venue", "rate_1h_percent"}
	for i, w := range models.MAWindows {
		rows := sqlmock.NewRows(sampleCols)
		if w == models.Window24h {
			rows.AddRow("BTC", "hyperliquid", 0.01).
				AddRow("BTC", "hyperliquid", 0.02).
				AddRow("BTC", "hyperliquid", 0.03)
		}
		mock.ExpectQuery("SELECT normalized_symbol, venue, rate_1h_percent FROM unified_v3").
			WithArgs(now.Add(-w.Duration()).Unix(), now.Unix()).
			WillReturnRows(rows)

		// Only the 24h window has enough samples to write anything.
		if i == 0 {
			mock.ExpectBegin()
			mock.ExpectPrepare("INSERT INTO funding_ma").
				ExpectExec().
				WithArgs("BTC", "hyperliquid", "24h",
					sqlmock.AnyArg(), sqlmock.AnyArg(), int64(3), sqlmock.AnyArg(),
					0.01, 0.03,
					now.Add(-24*time.Hour).Unix(), now.Unix()).
				WillReturnResult(sqlmock.NewResult(1, 1))
			mock.ExpectCommit()
		}
	}

	mock.ExpectExec("INSERT INTO funding_ma_cross").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO funding_ma_cache").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, e.Run(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMeanStddev(t *testing.T) {
	mean, sd := meanStddev(nil)
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 0.0, sd)

	mean, sd = meanStddev([]float64{2})
	assert.Equal(t, 2.0, mean)
	assert.Equal(t, 0.0, sd)

	mean, sd = meanStddev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-12)
	assert.InDelta(t, 2.138, sd, 1e-3) // sample stddev
}
