package rollup

import (
	"math"

	"github.com/perpscan/perpscan/internal/models"
)

// atr14 computes a 14-period average true range over hourly aggregates,
// expressed as a percentage of the latest average price. The hourly min/max
// stand in for low/high and the average mark price for the close.
func atr14(series []models.Aggregate) float64 {
	const periods = 14
	if len(series) < periods+1 {
		return 0
	}
	series = series[len(series)-periods-1:]

	var sum float64
	for i := 1; i < len(series); i++ {
		prevClose := series[i-1].AvgMarkPrice
		high, low := series[i].MaxPrice, series[i].MinPrice
		tr := high - low
		if d := math.Abs(high - prevClose); d > tr {
			tr = d
		}
		if d := math.Abs(low - prevClose); d > tr {
			tr = d
		}
		sum += tr
	}

	last := series[len(series)-1].AvgMarkPrice
	if last <= 0 {
		return 0
	}
	return sum / periods / last * 100
}

// realizedVol computes the standard deviation of hourly log returns over the
// trailing n hours, annualized to a percentage.
func realizedVol(series []models.Aggregate, hours int) float64 {
	if len(series) > hours+1 {
		series = series[len(series)-hours-1:]
	}
	if len(series) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1].AvgMarkPrice, series[i].AvgMarkPrice
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	const hoursPerYear = 24 * 365
	return math.Sqrt(variance) * math.Sqrt(hoursPerYear) * 100
}

// bollingerWidth computes the 20-period Bollinger band width (4 sigma) as a
// percentage of the 20-period mean price.
func bollingerWidth(series []models.Aggregate) float64 {
	const periods = 20
	if len(series) < periods {
		return 0
	}
	series = series[len(series)-periods:]

	var mean float64
	for _, a := range series {
		mean += a.AvgMarkPrice
	}
	mean /= periods
	if mean <= 0 {
		return 0
	}

	var variance float64
	for _, a := range series {
		variance += (a.AvgMarkPrice - mean) * (a.AvgMarkPrice - mean)
	}
	variance /= periods

	return 4 * math.Sqrt(variance) / mean * 100
}
