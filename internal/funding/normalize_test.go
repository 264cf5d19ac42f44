package funding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpscan/perpscan/internal/venues"
)

func TestNormalizeEightHourFamily(t *testing.T) {
	raw := 0.0008 // decimal per 8h
	for _, v := range []venues.Venue{venues.Hyperliquid, venues.Hyena, venues.XYZ, venues.Paradex} {
		r, err := Normalize(v, raw, 0)
		require.NoError(t, err)
		assert.InDelta(t, 0.0001, r.Hourly, 1e-12, "venue %s", v)
		assert.InDelta(t, 0.01, r.HourlyPercent, 1e-12, "venue %s", v)
		assert.InDelta(t, 0.01*24*365, r.APRPercent, 1e-9, "venue %s", v)
		assert.Equal(t, 8.0, r.IntervalHours)
	}
}

func TestNormalizeEdgeXFourHour(t *testing.T) {
	r, err := Normalize(venues.EdgeX, 0.0004, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, r.Hourly, 1e-12)
	assert.InDelta(t, 0.01*24*365, r.APRPercent, 1e-9)
	assert.Equal(t, 4.0, r.IntervalHours)
}

func TestNormalizeLighterPercentBasis(t *testing.T) {
	// Lighter reports hourly rates already in percent: no extra x100.
	r, err := Normalize(venues.Lighter, 0.0012, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.0012, r.Hourly, 1e-12)
	assert.InDelta(t, 0.0012, r.HourlyPercent, 1e-12)
	assert.InDelta(t, 10.512, r.APRPercent, 1e-9)
}

func TestNormalizeOneHourDecimal(t *testing.T) {
	for _, v := range []venues.Venue{venues.Extended, venues.Pacifica} {
		r, err := Normalize(v, 0.0001, 0)
		require.NoError(t, err)
		assert.InDelta(t, 0.0001, r.Hourly, 1e-12, "venue %s", v)
		assert.InDelta(t, 0.01*24*365, r.APRPercent, 1e-9, "venue %s", v)
	}
}

func TestNormalizeAsterVariableInterval(t *testing.T) {
	// Default interval is 8h.
	r, err := Normalize(venues.Aster, 0.0008, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, r.Hourly, 1e-12)

	// Explicit 4h override.
	r, err = Normalize(venues.Aster, 0.0008, 4)
	require.NoError(t, err)
	assert.InDelta(t, 0.0002, r.Hourly, 1e-12)
	assert.Equal(t, 4.0, r.IntervalHours)
}

func TestNormalizeVariationalScaled(t *testing.T) {
	r, err := Normalize(venues.Variational, 0.090939, 8)
	require.NoError(t, err)
	assert.InDelta(t, 0.000090939, r.Hourly, 1e-9)
	assert.InDelta(t, 0.0090939, r.HourlyPercent, 1e-7)
	assert.True(t, WithinBounds(r.HourlyPercent))
}

func TestNormalizeUnknownVenue(t *testing.T) {
	_, err := Normalize(venues.Venue("binance"), 0.0001, 0)
	assert.Error(t, err)
}

func TestWithinBounds(t *testing.T) {
	assert.True(t, WithinBounds(9.99))
	assert.True(t, WithinBounds(-10))
	assert.False(t, WithinBounds(10.01))
	assert.False(t, WithinBounds(-12))
}
