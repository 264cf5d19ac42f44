package rollup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/perpscan/perpscan/internal/models"
)

func hourSeries(prices ...float64) []models.Aggregate {
	out := make([]models.Aggregate, len(prices))
	for i, p := range prices {
		out[i] = models.Aggregate{
			AvgMarkPrice: p,
			MinPrice:     p * 0.99,
			MaxPrice:     p * 1.01,
			Bucket:       int64(i) * 3600,
		}
	}
	return out
}

func TestATR14RequiresFifteenCandles(t *testing.T) {
	assert.Equal(t, 0.0, atr14(hourSeries(100, 101, 102)))

	series := hourSeries(
		100, 101, 102, 101, 100, 99, 100, 101,
		102, 103, 102, 101, 100, 101, 102,
	)
	got := atr14(series)
	assert.Greater(t, got, 0.0)
	// Ranges are ~2% of price, so a 14-period ATR stays in that ballpark.
	assert.Less(t, got, 5.0)
}

func TestRealizedVolFlatSeriesIsZero(t *testing.T) {
	series := hourSeries(100, 100, 100, 100, 100)
	assert.Equal(t, 0.0, realizedVol(series, 24))
}

func TestRealizedVolGrowsWithSwings(t *testing.T) {
	calm := realizedVol(hourSeries(100, 100.1, 100.05, 100.2, 100.1, 100.15), 24)
	wild := realizedVol(hourSeries(100, 105, 98, 107, 95, 103), 24)
	assert.Greater(t, wild, calm)
	assert.Greater(t, calm, 0.0)
}

func TestRealizedVolSkipsNonPositivePrices(t *testing.T) {
	series := hourSeries(100, 0, 101, 0, 102)
	// Only one usable return remains, below the minimum of two.
	assert.Equal(t, 0.0, realizedVol(series, 24))
}

func TestBollingerWidth(t *testing.T) {
	assert.Equal(t, 0.0, bollingerWidth(hourSeries(100, 101)))

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
	}
	assert.Equal(t, 0.0, bollingerWidth(hourSeries(flat...)))

	varying := make([]float64, 20)
	for i := range varying {
		varying[i] = 100
		if i%2 == 0 {
			varying[i] = 102
		}
	}
	assert.Greater(t, bollingerWidth(hourSeries(varying...)), 0.0)
}
