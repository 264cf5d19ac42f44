package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/store"
	"github.com/perpscan/perpscan/internal/symbols"
	"github.com/perpscan/perpscan/internal/venues"
)

// Query caps. Raw snapshot queries may page deep; derived tables stay small.
const (
	maxRawLimit     = 10000
	maxDerivedLimit = 1000
	maxRangeDays    = 30
)

func parseLimit(r *http.Request, def, max int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func parseFloat(r *http.Request, name string) float64 {
	f, _ := strconv.ParseFloat(r.URL.Query().Get(name), 64)
	return f
}

func parseInt64(r *http.Request, name string) int64 {
	n, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return n
}

func parseWindow(tag string) (models.MAWindow, bool) {
	w := models.MAWindow(tag)
	for _, known := range models.MAWindows {
		if w == known {
			return w, true
		}
	}
	if w == models.WindowLive {
		return w, true
	}
	return "", false
}

// parseVenueList splits a comma-separated venue filter, rejecting unknown
// tags.
func parseVenueList(raw string) ([]string, bool) {
	if raw == "" {
		return nil, true
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.ToLower(strings.TrimSpace(p))
		if v == "" {
			continue
		}
		if !venues.IsValid(venues.Venue(v)) {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.TokenFilter{
		Venue:    strings.ToLower(q.Get("venue")),
		MinOIUSD: parseFloat(r, "min_oi"),
		Limit:    parseLimit(r, 200, maxDerivedLimit),
	}
	if sym := q.Get("symbol"); sym != "" {
		f.NormalizedSymbol = symbols.Normalize(sym)
	}
	if f.Venue != "" && !venues.IsValid(venues.Venue(f.Venue)) {
		writeError(w, http.StatusBadRequest, "unknown venue: "+f.Venue)
		return
	}

	s.cached("markets", w, r, func() (interface{}, error) {
		return s.deps.Markets.ListNormalizedTokens(r.Context(), f)
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	normalized := symbols.Normalize(mux.Vars(r)["symbol"])

	s.cached("compare", w, r, func() (interface{}, error) {
		return s.deps.Markets.CompareSymbol(r.Context(), normalized)
	})
}

// ratesQuery builds the unified-table filter shared by the rates and APR
// endpoints.
func (s *Server) ratesQuery(w http.ResponseWriter, r *http.Request) (store.RatesQuery, bool) {
	q := r.URL.Query()

	sym := q.Get("symbol")
	if sym == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return store.RatesQuery{}, false
	}

	vs, ok := parseVenueList(q.Get("venues"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown venue in filter")
		return store.RatesQuery{}, false
	}

	out := store.RatesQuery{
		NormalizedSymbol: symbols.Normalize(sym),
		Venues:           vs,
		FromSec:          parseInt64(r, "from"),
		ToSec:            parseInt64(r, "to"),
		Limit:            parseLimit(r, 500, maxRawLimit),
	}

	if tag := q.Get("window"); tag != "" {
		win, ok := parseWindow(tag)
		if !ok || win == models.WindowLive {
			writeError(w, http.StatusBadRequest, "unknown window: "+tag)
			return store.RatesQuery{}, false
		}
		out.FromSec = time.Now().Add(-win.Duration()).Unix()
		out.ToSec = 0
	}

	if out.FromSec > 0 && out.ToSec > out.FromSec {
		if out.ToSec-out.FromSec > maxRangeDays*24*3600 {
			writeError(w, http.StatusBadRequest, "time range exceeds 30 days")
			return store.RatesQuery{}, false
		}
	}
	return out, true
}

func (s *Server) handleFundingRates(w http.ResponseWriter, r *http.Request) {
	q, ok := s.ratesQuery(w, r)
	if !ok {
		return
	}
	s.cached("funding_rates", w, r, func() (interface{}, error) {
		return s.deps.Unified.Rates(r.Context(), q)
	})
}

// aprPoint is the reduced APR projection of a unified row.
type aprPoint struct {
	Venue       string  `json:"venue"`
	Symbol      string  `json:"symbol"`
	FundingTime int64   `json:"funding_time"`
	RateAPR     float64 `json:"rate_apr"`
}

func (s *Server) handleFundingAPR(w http.ResponseWriter, r *http.Request) {
	q, ok := s.ratesQuery(w, r)
	if !ok {
		return
	}
	s.cached("funding_apr", w, r, func() (interface{}, error) {
		rows, err := s.deps.Unified.Rates(r.Context(), q)
		if err != nil {
			return nil, err
		}
		out := make([]aprPoint, len(rows))
		for i, u := range rows {
			out[i] = aprPoint{Venue: u.Venue, Symbol: u.Symbol, FundingTime: u.FundingTime, RateAPR: u.RateAPR}
		}
		return out, nil
	})
}

func (s *Server) handleFundingSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sym := q.Get("symbol")
	if sym == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	win := models.Window24h
	if tag := q.Get("window"); tag != "" {
		parsed, ok := parseWindow(tag)
		if !ok || parsed == models.WindowLive {
			writeError(w, http.StatusBadRequest, "unknown window: "+tag)
			return
		}
		win = parsed
	}
	fromSec := time.Now().Add(-win.Duration()).Unix()
	normalized := symbols.Normalize(sym)

	s.cached("funding_summary", w, r, func() (interface{}, error) {
		return s.deps.Unified.Summary(r.Context(), normalized, fromSec)
	})
}

func (s *Server) handleFundingMA(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sym := q.Get("symbol")
	if sym == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	win, ok := parseWindow(q.Get("window"))
	if !ok || win == models.WindowLive {
		writeError(w, http.StatusBadRequest, "window must be one of 24h, 3d, 7d, 14d, 30d")
		return
	}
	venue := strings.ToLower(q.Get("venue"))
	normalized := symbols.Normalize(sym)

	if venue == "cross" {
		s.cached("funding_ma_cross", w, r, func() (interface{}, error) {
			return s.deps.MAs.Cross(r.Context(), normalized, win)
		})
		return
	}
	if venue != "" && !venues.IsValid(venues.Venue(venue)) {
		writeError(w, http.StatusBadRequest, "unknown venue: "+venue)
		return
	}

	s.cached("funding_ma", w, r, func() (interface{}, error) {
		return s.deps.MAs.PerVenue(r.Context(), normalized, win, venue)
	})
}

func (s *Server) handleFundingMALatest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sym := q.Get("symbol")
	if sym == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	venue := strings.ToLower(q.Get("venue"))
	if venue != "" && !venues.IsValid(venues.Venue(venue)) {
		writeError(w, http.StatusBadRequest, "unknown venue: "+venue)
		return
	}
	normalized := symbols.Normalize(sym)

	s.cached("funding_ma_latest", w, r, func() (interface{}, error) {
		return s.deps.MAs.Latest(r.Context(), normalized, venue)
	})
}

func (s *Server) handleFundingMABulk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := q.Get("symbols")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "symbols is required")
		return
	}

	var syms []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			syms = append(syms, symbols.Normalize(p))
		}
	}
	if len(syms) == 0 {
		writeError(w, http.StatusBadRequest, "symbols is required")
		return
	}

	win := models.Window24h
	if tag := q.Get("window"); tag != "" {
		parsed, ok := parseWindow(tag)
		if !ok || parsed == models.WindowLive {
			writeError(w, http.StatusBadRequest, "unknown window: "+tag)
			return
		}
		win = parsed
	}
	limit := parseLimit(r, maxDerivedLimit, maxDerivedLimit)

	s.cached("funding_ma_bulk", w, r, func() (interface{}, error) {
		return s.deps.MAs.Bulk(r.Context(), syms, win, limit)
	})
}

func (s *Server) handleArbitrage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	aq := store.ArbQuery{
		Venue:        strings.ToLower(q.Get("venue")),
		MinSpread:    parseFloat(r, "min_spread"),
		MinSpreadAPR: parseFloat(r, "min_spread_apr"),
		StableOnly:   q.Get("stable") == "true",
		SortBy:       q.Get("sort"),
		Limit:        parseLimit(r, 100, maxDerivedLimit),
	}
	if sym := q.Get("symbol"); sym != "" {
		aq.NormalizedSymbol = symbols.Normalize(sym)
	}
	if aq.Venue != "" && !venues.IsValid(venues.Venue(aq.Venue)) {
		writeError(w, http.StatusBadRequest, "unknown venue: "+aq.Venue)
		return
	}
	if tag := q.Get("window"); tag != "" {
		win, ok := parseWindow(tag)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown window: "+tag)
			return
		}
		aq.Window = win
	}

	s.cached("arbitrage", w, r, func() (interface{}, error) {
		return s.deps.Arbs.List(r.Context(), aq)
	})
}

func (s *Server) venueVar(w http.ResponseWriter, r *http.Request) (venues.Venue, bool) {
	v := venues.Venue(strings.ToLower(mux.Vars(r)["venue"]))
	if !venues.IsValid(v) {
		writeError(w, http.StatusBadRequest, "unknown venue: "+string(v))
		return "", false
	}
	return v, true
}

func (s *Server) handleCollectors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Manager.StatusAll())
}

func (s *Server) handleCollectorStatus(w http.ResponseWriter, r *http.Request) {
	v, ok := s.venueVar(w, r)
	if !ok {
		return
	}
	st, err := s.deps.Manager.Status(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCollectorDebug(w http.ResponseWriter, r *http.Request) {
	v, ok := s.venueVar(w, r)
	if !ok {
		return
	}
	d, err := s.deps.Manager.Debug(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCollectorStart(w http.ResponseWriter, r *http.Request) {
	v, ok := s.venueVar(w, r)
	if !ok {
		return
	}
	if err := s.deps.Manager.Start(v); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"venue": string(v), "action": "start"})
}

func (s *Server) handleCollectorStop(w http.ResponseWriter, r *http.Request) {
	v, ok := s.venueVar(w, r)
	if !ok {
		return
	}
	if err := s.deps.Manager.Stop(v); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"venue": string(v), "action": "stop"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	trackers, err := s.deps.Status.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trackers": trackers,
		"jobs":     s.deps.Scheduler.Results(),
	})
}
