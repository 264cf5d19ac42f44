package collector

import (
	"context"
	"sync/atomic"
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

func TestNextGridTick(t *testing.T) {
	cases := []struct {
		now  int64
		want int64
	}{
		{1700000011, 1700000025},
		{1700000024, 1700000025},
		{1700000010, 1700000025}, // exactly on the grid waits a full interval
		{1700000025, 1700000040},
	}
	for _, tc := range cases {
		got := nextGridTick(time.Unix(tc.now, 0))
		assert.Equal(t, tc.want, got.Unix(), "now=%d", tc.now)
	}
}

func newTestBase(t *testing.T) (*base, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sdb := sqlx.NewDb(db, "postgres")
	return newBase(
		venues.Hyperliquid,
		store.NewSnapshotRepo(sdb, time.Second),
		store.NewStatusRepo(sdb, time.Second),
		metrics.NewRegistry(),
		zerolog.Nop(),
	), mock
}

func TestFlushDerivesOpenInterestUSD(t *testing.T) {
	b, mock := newTestBase(t)

	b.update(models.Snapshot{
		Symbol:       "BTC",
		MarkPrice:    65000,
		OpenInterest: 1.5,
		FundingRate:  0.0000125,
	})

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO market_stats").
		ExpectExec().
		WithArgs(
			"hyperliquid", "BTC", 65000.0, 0.0, 1.5, 97500.0,
			0.0, 0.0000125, 0.0,
			0.0, 0.0, 0.0, 0.0, 0.0, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, b.flush(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	// The buffer is cleared after a successful flush.
	assert.Equal(t, 0, b.Debug().BufferSize)
	assert.Equal(t, int64(1), b.Debug().Counters.Snapshots)
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	b, mock := newTestBase(t)

	require.NoError(t, b.flush(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateKeepsLatestPerSymbol(t *testing.T) {
	b, _ := newTestBase(t)

	b.update(models.Snapshot{Symbol: "BTC", MarkPrice: 64000})
	b.update(models.Snapshot{Symbol: "BTC", MarkPrice: 65000})
	b.update(models.Snapshot{Symbol: "ETH", MarkPrice: 3500})

	assert.Equal(t, 2, b.Debug().BufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, 65000.0, b.buffer["BTC"].MarkPrice)
	assert.Equal(t, "hyperliquid", b.buffer["BTC"].Venue)
}

type fakeCollector struct {
	venue   venues.Venue
	runs    *int32
	stopped chan struct{}
}

func (f *fakeCollector) Run(ctx context.Context) {
	atomic.AddInt32(f.runs, 1)
	<-ctx.Done()
	close(f.stopped)
}
func (f *fakeCollector) Status() string           { return models.StatusRunning }
func (f *fakeCollector) Debug() DebugInfo         { return DebugInfo{Venue: string(f.venue)} }
func (f *fakeCollector) LastMessageAt() time.Time { return time.Time{} }
func (f *fakeCollector) Venue() venues.Venue      { return f.venue }

func TestManagerLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	factories := map[venues.Venue]Factory{
		venues.Lighter: func() Collector {
			return &fakeCollector{venue: venues.Lighter, runs: &runs, stopped: make(chan struct{})}
		},
	}
	m := NewManager(ctx, factories, zerolog.Nop())

	// Status implies start.
	st, err := m.Status(venues.Lighter)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, st.Status)
	assert.True(t, st.Running)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	// Starting again is a no-op while the collector runs.
	require.NoError(t, m.Start(venues.Lighter))
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	require.NoError(t, m.Stop(venues.Lighter))

	// Restart builds a fresh instance.
	require.NoError(t, m.Restart(venues.Lighter))
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))

	_, err = m.Status(venues.Venue("nope"))
	assert.Error(t, err)
}

func TestManagerDebugImpliesStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	m := NewManager(ctx, map[venues.Venue]Factory{
		venues.EdgeX: func() Collector {
			return &fakeCollector{venue: venues.EdgeX, runs: &runs, stopped: make(chan struct{})}
		},
	}, zerolog.Nop())

	d, err := m.Debug(venues.EdgeX)
	require.NoError(t, err)
	assert.Equal(t, "edgex", d.Venue)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestObserveNeverStarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	m := NewManager(ctx, map[venues.Venue]Factory{
		venues.Paradex: func() Collector {
			return &fakeCollector{venue: venues.Paradex, runs: &runs, stopped: make(chan struct{})}
		},
	}, zerolog.Nop())

	// Observing a venue that was never started leaves it down.
	st, err := m.Observe(venues.Paradex)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStopped, st.Status)
	assert.False(t, st.Running)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))

	// An explicitly stopped venue stays stopped across observations.
	require.NoError(t, m.Start(venues.Paradex))
	require.NoError(t, m.Stop(venues.Paradex))
	for _, got := range m.ObserveAll() {
		assert.False(t, got.Running)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestFactoriesCoverAllVenues(t *testing.T) {
	factories, err := Factories(Deps{Log: zerolog.Nop()})
	require.NoError(t, err)
	assert.Len(t, factories, len(venues.All()))
	for _, v := range venues.All() {
		assert.Contains(t, factories, v)
	}
}
