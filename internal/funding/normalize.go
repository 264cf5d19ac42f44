// Package funding converts venue-native funding-rate encodings into uniform
// per-hour and annualized percentages.
package funding

import (
	"fmt"

	"github.com/perpscan/perpscan/internal/venues"
)

// HoursPerYear is the annualization factor for an hourly rate.
const HoursPerYear = 24 * 365

// variationalScale: Variational reports funding scaled by 1000 relative to the
// hourly decimal rate, regardless of the advertised 8h payment interval.
const variationalScale = 1000.0

// Rate is a venue funding rate normalized onto a common basis.
type Rate struct {
	// Hourly is the per-hour rate in the venue's native unit (percent for
	// venues that report percentages, decimal otherwise).
	Hourly float64
	// HourlyPercent is the per-hour rate expressed in percent.
	HourlyPercent float64
	// APRPercent is the rate annualized onto a 1-year basis, in percent.
	APRPercent float64
	// IntervalHours is the funding payment cadence that was applied.
	IntervalHours float64
}

// Normalize converts a raw funding rate for the given venue. intervalHours
// overrides the venue default when positive; venues with a fixed cadence
// ignore the override.
func Normalize(v venues.Venue, raw float64, intervalHours float64) (Rate, error) {
	cfg, ok := venues.Lookup(v)
	if !ok {
		return Rate{}, fmt.Errorf("unknown venue: %s", v)
	}

	interval := cfg.IntervalHours
	if cfg.VariableRate && intervalHours > 0 {
		interval = intervalHours
	}

	var hourly float64
	switch {
	case v == venues.Variational:
		hourly = raw / variationalScale
	default:
		hourly = raw / interval
	}

	hourlyPct := hourly
	if !cfg.RawInPercent {
		hourlyPct = hourly * 100
	}

	return Rate{
		Hourly:        hourly,
		HourlyPercent: hourlyPct,
		APRPercent:    hourlyPct * HoursPerYear,
		IntervalHours: interval,
	}, nil
}

// RawPercent expresses a venue's raw per-interval rate in percent, which is
// what the quality filter bounds.
func RawPercent(v venues.Venue, raw float64) float64 {
	if cfg, ok := venues.Lookup(v); ok && cfg.RawInPercent {
		return raw
	}
	return raw * 100
}

// MaxAbsRatePercent is the data-quality cutoff: rows whose per-interval raw
// rate exceeds this in absolute percent are dropped by downstream consumers.
const MaxAbsRatePercent = 10.0

// WithinBounds reports whether a raw-rate percentage passes the quality filter.
func WithinBounds(rawPercent float64) bool {
	return rawPercent >= -MaxAbsRatePercent && rawPercent <= MaxAbsRatePercent
}
