// Package arb rebuilds the pairwise funding-arbitrage table from the
// precomputed moving averages plus a synthetic live window.
package arb

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/perpscan/perpscan/internal/metrics"
	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/store"
	"github.com/perpscan/perpscan/internal/venues"
)

const (
	// liveLookback bounds the synthetic live window: the latest unified row
	// per (symbol, venue) no older than this.
	liveLookback = 15 * time.Minute
	// maxAbsAPR drops runaway MA rows before pairing.
	maxAbsAPR = 500.0
	// minVariationalOI drops thin Variational listings whose funding prints
	// are noise rather than tradable rates.
	minVariationalOI = 200_000.0
	// stableThreshold is the stability score at which a pair is flagged
	// stable: the same long/short ordering across at least 4 window tags.
	stableThreshold = 4
)

// rateEntry is one venue's rate for a symbol under one window tag.
type rateEntry struct {
	Rate1h float64
	APR    float64
}

// windowRates maps symbol -> venue -> entry for one window tag.
type windowRates map[string]map[string]rateEntry

// Engine owns the arbitrage rebuild. It runs after the MA engine so the
// per-venue MA tables are fresh.
type Engine struct {
	unified *store.UnifiedRepo
	mas     *store.MARepo
	arbs    *store.ArbRepo
	metrics *metrics.Registry
	log     zerolog.Logger

	now func() time.Time
}

// NewEngine creates the arbitrage engine.
func NewEngine(unified *store.UnifiedRepo, mas *store.MARepo, arbs *store.ArbRepo, reg *metrics.Registry, log zerolog.Logger) *Engine {
	return &Engine{
		unified: unified,
		mas:     mas,
		arbs:    arbs,
		metrics: reg,
		log:     log.With().Str("component", "arb_engine").Logger(),
		now:     time.Now,
	}
}

// Run rebuilds the arbitrage table from scratch: gather rates per window tag,
// apply the quality filters, pair venues, score stability, replace.
func (e *Engine) Run(ctx context.Context) error {
	now := e.now()

	tags := append(append([]models.MAWindow{}, models.MAWindows...), models.WindowLive)
	byWindow := make(map[models.MAWindow]windowRates, len(tags))
	dropped := 0

	for _, w := range models.MAWindows {
		rows, err := e.mas.AllForWindow(ctx, w)
		if err != nil {
			return err
		}
		rates := make(windowRates)
		for _, r := range rows {
			if math.Abs(r.MAAPR) > maxAbsAPR {
				dropped++
				continue
			}
			put(rates, r.NormalizedSymbol, r.Venue, rateEntry{Rate1h: r.MARate1h, APR: r.MAAPR})
		}
		byWindow[w] = rates
	}

	live, liveDropped, err := e.liveRates(ctx, now)
	if err != nil {
		return err
	}
	byWindow[models.WindowLive] = live
	dropped += liveDropped

	// Thin Variational listings are dropped across every window tag.
	oiDropped, err := e.dropThinVariational(ctx, byWindow)
	if err != nil {
		return err
	}
	dropped += oiDropped

	rows := pairAndScore(byWindow, tags, now)

	if err := e.arbs.Replace(ctx, rows); err != nil {
		return err
	}

	e.metrics.ArbRowsWritten.Set(float64(len(rows)))
	if dropped > 0 {
		e.metrics.RowsDropped.WithLabelValues("arbitrage").Add(float64(dropped))
	}
	e.log.Info().Int("rows", len(rows)).Int("dropped", dropped).Msg("Arbitrage rebuild complete")
	return nil
}

// liveRates derives the synthetic live window from the most recent unified
// row per (symbol, venue).
func (e *Engine) liveRates(ctx context.Context, now time.Time) (windowRates, int, error) {
	since := now.Add(-liveLookback).Unix()
	pairs, err := e.unified.ActivePairs(ctx, since)
	if err != nil {
		return nil, 0, err
	}

	symbols := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		symbols[p.NormalizedSymbol] = struct{}{}
	}

	rates := make(windowRates, len(symbols))
	dropped := 0
	for sym := range symbols {
		latest, err := e.unified.LatestPerVenue(ctx, sym, since)
		if err != nil {
			return nil, 0, err
		}
		for _, u := range latest {
			if math.Abs(u.RateAPR) > maxAbsAPR {
				dropped++
				continue
			}
			put(rates, sym, u.Venue, rateEntry{Rate1h: u.Rate1hPercent, APR: u.RateAPR})
		}
	}
	return rates, dropped, nil
}

func (e *Engine) dropThinVariational(ctx context.Context, byWindow map[models.MAWindow]windowRates) (int, error) {
	thin := make(map[string]bool)
	dropped := 0

	for _, rates := range byWindow {
		for sym, perVenue := range rates {
			if _, ok := perVenue[string(venues.Variational)]; !ok {
				continue
			}
			isThin, checked := thin[sym]
			if !checked {
				oi, err := e.unified.LatestOpenInterest(ctx, sym, string(venues.Variational))
				if err != nil {
					return dropped, err
				}
				isThin = oi < minVariationalOI
				thin[sym] = isThin
			}
			if isThin {
				delete(perVenue, string(venues.Variational))
				dropped++
			}
		}
	}
	return dropped, nil
}

func put(rates windowRates, sym, venue string, e rateEntry) {
	perVenue, ok := rates[sym]
	if !ok {
		perVenue = make(map[string]rateEntry)
		rates[sym] = perVenue
	}
	perVenue[venue] = e
}

// pairAndScore emits one opportunity per (symbol, window, venue pair) and
// scores how many window tags agree on the long/short orientation.
func pairAndScore(byWindow map[models.MAWindow]windowRates, tags []models.MAWindow, now time.Time) []models.ArbRow {
	// orientation[symbol|venueA|venueB] (A < B lexically) lists, per tag, the
	// venue that takes the long side.
	orientation := make(map[string]map[models.MAWindow]string)
	for _, w := range tags {
		for sym, perVenue := range byWindow[w] {
			forEachPair(perVenue, func(a, b string, ra, rb rateEntry) {
				long := a
				if rb.Rate1h < ra.Rate1h {
					long = b
				}
				key := sym + "|" + a + "|" + b
				if orientation[key] == nil {
					orientation[key] = make(map[models.MAWindow]string)
				}
				orientation[key][w] = long
			})
		}
	}

	var rows []models.ArbRow
	for _, w := range tags {
		syms := make([]string, 0, len(byWindow[w]))
		for sym := range byWindow[w] {
			syms = append(syms, sym)
		}
		sort.Strings(syms)

		for _, sym := range syms {
			forEachPair(byWindow[w][sym], func(a, b string, ra, rb rateEntry) {
				long, short := a, b
				longE, shortE := ra, rb
				if rb.Rate1h < ra.Rate1h {
					long, short = b, a
					longE, shortE = rb, ra
				}

				score := 0
				for _, agreed := range orientation[sym+"|"+a+"|"+b] {
					if agreed == long {
						score++
					}
				}

				rows = append(rows, models.ArbRow{
					NormalizedSymbol: sym,
					LongVenue:        long,
					ShortVenue:       short,
					Window:           w,
					LongRate:         longE.Rate1h,
					ShortRate:        shortE.Rate1h,
					Spread:           math.Abs(shortE.Rate1h - longE.Rate1h),
					LongAPR:          longE.APR,
					ShortAPR:         shortE.APR,
					SpreadAPR:        math.Abs(shortE.APR - longE.APR),
					StabilityScore:   score,
					IsStable:         score >= stableThreshold,
					CalculatedAt:     now,
				})
			})
		}
	}
	return rows
}

// forEachPair visits every unordered venue pair in lexical order (a < b).
func forEachPair(perVenue map[string]rateEntry, fn func(a, b string, ra, rb rateEntry)) {
	vs := make([]string, 0, len(perVenue))
	for v := range perVenue {
		vs = append(vs, v)
	}
	sort.Strings(vs)

	for i := 0; i < len(vs); i++ {
		for j := i + 1; j < len(vs); j++ {
			fn(vs[i], vs[j], perVenue[vs[i]], perVenue[vs[j]])
		}
	}
}
