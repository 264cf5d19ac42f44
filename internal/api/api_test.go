package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpscan/perpscan/internal/cache"
	"github.com/perpscan/perpscan/internal/collector"
	"github.com/perpscan/perpscan/internal/metrics"
	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/sched"
	"github.com/perpscan/perpscan/internal/store"
)

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sdb := sqlx.NewDb(db, "postgres")
	timeout := time.Second

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	deps := Deps{
		Markets:   store.NewMarketsRepo(sdb, timeout),
		Unified:   store.NewUnifiedRepo(sdb, timeout),
		MAs:       store.NewMARepo(sdb, timeout),
		Arbs:      store.NewArbRepo(sdb, timeout),
		Status:    store.NewStatusRepo(sdb, timeout),
		Manager:   collector.NewManager(ctx, nil, zerolog.Nop()),
		Scheduler: sched.New(nil, zerolog.Nop()),
		Cache:     cache.New(),
		Metrics:   metrics.NewRegistry(),
		Log:       zerolog.Nop(),
	}
	return NewServer(DefaultConfig(), deps), mock
}

func doGET(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGET(s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMarketsListAndCache(t *testing.T) {
	s, mock := newTestServer(t)

	cols := []string{"normalized_symbol", "venue", "symbol", "mark_price", "funding_apr"}
	mock.ExpectQuery("SELECT \\* FROM normalized_tokens").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("BTC", "hyperliquid", "BTC", 65000.0, 10.95))

	rec := doGET(s, "/api/markets?symbol=btc-usd-perp")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.True(t, env.Success)
	require.NoError(t, mock.ExpectationsWereMet())

	// Same URI again is served from the response cache, no second query.
	rec = doGET(s, "/api/markets?symbol=btc-usd-perp")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
}

func TestMarketsRejectsUnknownVenue(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGET(s, "/api/markets?venue=binance")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "unknown venue")
}

func TestFundingRatesValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGET(s, "/api/funding/rates")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doGET(s, "/api/funding/rates?symbol=BTC&window=2h")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 31 days.
	from := int64(1700000000)
	to := from + 31*24*3600
	rec = doGET(s, fmt.Sprintf("/api/funding/rates?symbol=BTC&from=%d&to=%d", from, to))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec).Error, "30 days")
}

func TestFundingRatesClampsLimit(t *testing.T) {
	s, mock := newTestServer(t)

	// A limit above the cap is clamped to 10000 before it reaches the store.
	mock.ExpectQuery("SELECT \\* FROM unified_v3").
		WithArgs("BTC", 10000).
		WillReturnRows(sqlmock.NewRows([]string{"normalized_symbol"}))

	rec := doGET(s, "/api/funding/rates?symbol=BTC&limit=50000")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFundingMAValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGET(s, "/api/funding/ma?symbol=BTC")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doGET(s, "/api/funding/ma?symbol=BTC&window=live")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGET(s, "/api/markets/BTC/history")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	from := int64(1700000000)
	rec = doGET(s, fmt.Sprintf("/api/markets/BTC/history?from=%d&to=%d", from, from+31*24*3600))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doGET(s, fmt.Sprintf("/api/markets/BTC/history?from=%d&to=%d&interval=5s", from, from+3600))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCollectorVenueValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGET(s, "/api/collectors/binance/debug")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFoundEnvelope(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGET(s, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decode(t, rec).Success)
}

func TestAutoInterval(t *testing.T) {
	assert.Equal(t, "raw", autoInterval(time.Hour))
	assert.Equal(t, "15m", autoInterval(24*time.Hour))
	assert.Equal(t, "1h", autoInterval(7*24*time.Hour))
}

func TestResample(t *testing.T) {
	rows := []models.Aggregate{
		{Venue: "edgex", Symbol: "BTCUSD", Bucket: 0, AvgMarkPrice: 100, MinPrice: 99, MaxPrice: 101, SampleCount: 4, VolumeQuote24h: 10},
		{Venue: "edgex", Symbol: "BTCUSD", Bucket: 3600, AvgMarkPrice: 104, MinPrice: 103, MaxPrice: 105, SampleCount: 12, VolumeQuote24h: 20},
		{Venue: "edgex", Symbol: "BTCUSD", Bucket: 14400, AvgMarkPrice: 110, MinPrice: 109, MaxPrice: 111, SampleCount: 4, VolumeQuote24h: 5},
	}

	out := resample(rows, 14400) // 4h buckets
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, int64(0), first.Bucket)
	// Weighted: (100*4 + 104*12) / 16 = 103.
	assert.InDelta(t, 103.0, first.AvgMarkPrice, 1e-9)
	assert.Equal(t, 99.0, first.MinPrice)
	assert.Equal(t, 105.0, first.MaxPrice)
	assert.Equal(t, int64(16), first.SampleCount)
	assert.Equal(t, 30.0, first.VolumeQuote24h)

	assert.Equal(t, int64(14400), out[1].Bucket)
}
