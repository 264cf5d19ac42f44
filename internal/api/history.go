package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/symbols"
)

// historyIntervals maps the interval tag to the output bucket size. Zero means
// raw snapshots; "auto" picks by range span.
var historyIntervals = map[string]time.Duration{
	"raw": 0,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// handleHistory serves time-series data for one base asset, dispatching to
// the raw, minute or hour table by interval and filling the tail of hour
// queries from not-yet-compacted minute rows.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	normalized := symbols.Normalize(mux.Vars(r)["symbol"])

	from := parseInt64(r, "from")
	to := parseInt64(r, "to")
	if to == 0 {
		to = time.Now().Unix()
	}
	if from <= 0 || from >= to {
		writeError(w, http.StatusBadRequest, "from/to range is required")
		return
	}
	span := time.Duration(to-from) * time.Second
	if span > maxRangeDays*24*time.Hour {
		writeError(w, http.StatusBadRequest, "time range exceeds 30 days")
		return
	}

	tag := q.Get("interval")
	if tag == "" {
		tag = "auto"
	}
	if tag == "auto" {
		tag = autoInterval(span)
	}
	bucket, ok := historyIntervals[tag]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown interval: "+tag)
		return
	}

	s.cached("history", w, r, func() (interface{}, error) {
		switch {
		case bucket == 0:
			rows, err := s.deps.Markets.RawRange(r.Context(), normalized, from*1000, to*1000, maxRawLimit)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"interval": tag, "rows": rows}, nil

		case bucket < time.Hour:
			rows, err := s.deps.Markets.MinuteRange(r.Context(), normalized, from, to, maxRawLimit)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"interval": tag, "rows": resample(rows, int64(bucket.Seconds()))}, nil

		default:
			rows, err := s.hourSeriesWithTail(r, normalized, from, to)
			if err != nil {
				return nil, err
			}
			if bucket > time.Hour {
				rows = resample(rows, int64(bucket.Seconds()))
			}
			return map[string]interface{}{"interval": tag, "rows": rows}, nil
		}
	})
}

// autoInterval picks the densest interval the range can afford.
func autoInterval(span time.Duration) string {
	switch {
	case span <= 2*time.Hour:
		return "raw"
	case span <= 48*time.Hour:
		return "15m"
	default:
		return "1h"
	}
}

// hourSeriesWithTail returns hour rows for the range, extending past the last
// compacted hour by aggregating minute rows on the fly.
func (s *Server) hourSeriesWithTail(r *http.Request, normalized string, from, to int64) ([]models.Aggregate, error) {
	hours, err := s.deps.Markets.HourRange(r.Context(), normalized, from, to, maxRawLimit)
	if err != nil {
		return nil, err
	}

	var lastHour int64
	for _, h := range hours {
		if h.Bucket > lastHour {
			lastHour = h.Bucket
		}
	}

	tailFrom := from
	if lastHour > 0 {
		tailFrom = lastHour + 3600
	}
	if tailFrom > to {
		return hours, nil
	}

	tail, err := s.deps.Markets.MinuteRangeAsHours(r.Context(), normalized, tailFrom, to)
	if err != nil {
		return nil, err
	}
	hours = append(hours, tail...)

	sort.Slice(hours, func(i, j int) bool {
		if hours[i].Bucket != hours[j].Bucket {
			return hours[i].Bucket < hours[j].Bucket
		}
		return hours[i].Venue < hours[j].Venue
	})
	return hours, nil
}

// resample regroups aggregates into coarser buckets, weighting averages by
// sample count. Rows stay split per (venue, symbol).
func resample(rows []models.Aggregate, bucketSec int64) []models.Aggregate {
	type key struct {
		venue, symbol string
		bucket        int64
	}

	grouped := make(map[key]*models.Aggregate)
	order := make([]key, 0, len(rows))
	weights := make(map[key]int64)

	for _, a := range rows {
		k := key{a.Venue, a.Symbol, a.Bucket / bucketSec * bucketSec}
		g, ok := grouped[k]
		if !ok {
			c := a
			c.Bucket = k.bucket
			grouped[k] = &c
			order = append(order, k)
			weights[k] = a.SampleCount
			continue
		}

		w0, w1 := float64(weights[k]), float64(a.SampleCount)
		total := w0 + w1
		if total > 0 {
			g.AvgMarkPrice = (g.AvgMarkPrice*w0 + a.AvgMarkPrice*w1) / total
			g.AvgOIUSD = (g.AvgOIUSD*w0 + a.AvgOIUSD*w1) / total
			g.AvgFundingRate = (g.AvgFundingRate*w0 + a.AvgFundingRate*w1) / total
			g.AvgFundingAPR = (g.AvgFundingAPR*w0 + a.AvgFundingAPR*w1) / total
		}
		if a.MinPrice < g.MinPrice {
			g.MinPrice = a.MinPrice
		}
		if a.MaxPrice > g.MaxPrice {
			g.MaxPrice = a.MaxPrice
		}
		if a.MinFundingRate < g.MinFundingRate {
			g.MinFundingRate = a.MinFundingRate
		}
		if a.MaxFundingRate > g.MaxFundingRate {
			g.MaxFundingRate = a.MaxFundingRate
		}
		if a.MaxOIUSD > g.MaxOIUSD {
			g.MaxOIUSD = a.MaxOIUSD
		}
		g.VolumeBase24h += a.VolumeBase24h
		g.VolumeQuote24h += a.VolumeQuote24h
		g.SampleCount += a.SampleCount
		weights[k] += a.SampleCount

		if g.AvgMarkPrice > 0 {
			g.PriceVolatility = (g.MaxPrice - g.MinPrice) / g.AvgMarkPrice * 100
		}
	}

	out := make([]models.Aggregate, 0, len(order))
	for _, k := range order {
		out = append(out, *grouped[k])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket != out[j].Bucket {
			return out[i].Bucket < out[j].Bucket
		}
		if out[i].Venue != out[j].Venue {
			return out[i].Venue < out[j].Venue
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
