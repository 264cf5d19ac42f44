package arb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpscan/perpscan/internal/models"
)

func ratesFor(sym string, entries map[string]rateEntry) windowRates {
	return windowRates{sym: entries}
}

func TestPairAndScoreOrientation(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tags := append(append([]models.MAWindow{}, models.MAWindows...), models.WindowLive)

	byWindow := map[models.MAWindow]windowRates{
		models.Window24h: ratesFor("BTC", map[string]rateEntry{
			"hyperliquid": {Rate1h: 0.001, APR: 8.76},
			"lighter":     {Rate1h: 0.003, APR: 26.28},
		}),
	}

	rows := pairAndScore(byWindow, tags, now)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, "BTC", r.NormalizedSymbol)
	assert.Equal(t, "hyperliquid", r.LongVenue) // lower rate goes long
	assert.Equal(t, "lighter", r.ShortVenue)
	assert.InDelta(t, 0.002, r.Spread, 1e-12)
	assert.InDelta(t, 17.52, r.SpreadAPR, 1e-9)
	assert.Equal(t, 1, r.StabilityScore)
	assert.False(t, r.IsStable)
	assert.Equal(t, now, r.CalculatedAt)
}

func TestPairAndScoreStability(t *testing.T) {
	now := time.Now()
	tags := append(append([]models.MAWindow{}, models.MAWindows...), models.WindowLive)

	same := map[string]rateEntry{
		"hyperliquid": {Rate1h: 0.001, APR: 8.76},
		"paradex":     {Rate1h: 0.005, APR: 43.8},
	}
	flipped := map[string]rateEntry{
		"hyperliquid": {Rate1h: 0.006, APR: 52.56},
		"paradex":     {Rate1h: 0.002, APR: 17.52},
	}

	// Four tags agree, one disagrees.
	byWindow := map[models.MAWindow]windowRates{
		models.Window24h:  ratesFor("ETH", same),
		models.Window3d:   ratesFor("ETH", same),
		models.Window7d:   ratesFor("ETH", same),
		models.WindowLive: ratesFor("ETH", same),
		models.Window30d:  ratesFor("ETH", flipped),
	}

	rows := pairAndScore(byWindow, tags, now)
	require.Len(t, rows, 5)

	for _, r := range rows {
		switch r.Window {
		case models.Window30d:
			assert.Equal(t, "paradex", r.LongVenue)
			assert.Equal(t, 1, r.StabilityScore)
			assert.False(t, r.IsStable)
		default:
			assert.Equal(t, "hyperliquid", r.LongVenue)
			assert.Equal(t, 4, r.StabilityScore)
			assert.True(t, r.IsStable)
		}
	}
}

func TestPairAndScoreNeedsTwoVenues(t *testing.T) {
	byWindow := map[models.MAWindow]windowRates{
		models.Window24h: ratesFor("SOL", map[string]rateEntry{
			"edgex": {Rate1h: 0.001, APR: 8.76},
		}),
	}
	rows := pairAndScore(byWindow, []models.MAWindow{models.Window24h}, time.Now())
	assert.Empty(t, rows)
}

func TestPairAndScoreThreeVenuesEmitAllPairs(t *testing.T) {
	byWindow := map[models.MAWindow]windowRates{
		models.Window24h: ratesFor("BTC", map[string]rateEntry{
			"edgex":   {Rate1h: 0.001, APR: 8.76},
			"lighter": {Rate1h: 0.002, APR: 17.52},
			"paradex": {Rate1h: 0.003, APR: 26.28},
		}),
	}
	rows := pairAndScore(byWindow, []models.MAWindow{models.Window24h}, time.Now())
	assert.Len(t, rows, 3)
}
