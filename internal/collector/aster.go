package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/perpscan/perpscan/internal/httpx"
	"github.com/perpscan/perpscan/internal/models"
)

const (
	asterPremiumIndexURL = "https://fapi.asterdex.com/fapi/v1/premiumIndex"
	asterFundingInfoURL  = "https://fapi.asterdex.com/fapi/v1/fundingInfo"
	asterTickerURL       = "https://fapi.asterdex.com/fapi/v1/ticker/24hr"

	asterDefaultIntervalHours = 8
	asterIntervalCacheTTL     = time.Hour
)

type asterPremiumIndex struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
	Time            int64  `json:"time"`
}

type asterFundingInfo struct {
	Symbol               string `json:"symbol"`
	FundingIntervalHours int    `json:"fundingIntervalHours"`
}

type asterTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
}

// asterFetcher polls the premium-index listing. Per-symbol funding intervals
// are variable on this venue, so the fundingInfo listing is cached and
// refreshed hourly; symbols missing from it fall back to the 8h default.
type asterFetcher struct {
	client *httpx.Client

	mu          sync.Mutex
	intervals   map[string]float64
	refreshedAt time.Time
}

// NewAsterFetch returns the polling fetch for Aster.
func NewAsterFetch(client *httpx.Client) FetchFunc {
	f := &asterFetcher{client: client, intervals: make(map[string]float64)}
	return f.fetch
}

func (f *asterFetcher) fetch(ctx context.Context) ([]models.Snapshot, error) {
	if err := f.refreshIntervals(ctx); err != nil {
		// Stale or empty interval map still works via the default.
		f.mu.Lock()
		empty := len(f.intervals) == 0
		f.mu.Unlock()
		if empty {
			return nil, err
		}
	}

	data, err := f.client.GetJSON(ctx, asterPremiumIndexURL)
	if err != nil {
		return nil, err
	}
	var listing []asterPremiumIndex
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode premium index: %w", err)
	}

	tickers, err := f.fetchTickers(ctx)
	if err != nil {
		// Funding is the primary signal; ticker stats are best-effort.
		tickers = map[string]asterTicker{}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Snapshot, 0, len(listing))
	for _, p := range listing {
		interval, ok := f.intervals[p.Symbol]
		if !ok || interval <= 0 {
			interval = asterDefaultIntervalHours
		}
		s := models.Snapshot{
			Symbol:          p.Symbol,
			MarkPrice:       toFloat(p.MarkPrice),
			IndexPrice:      toFloat(p.IndexPrice),
			FundingRate:     toFloat(p.LastFundingRate),
			FundingInterval: interval,
		}
		if t, ok := tickers[p.Symbol]; ok {
			s.LastPrice = toFloat(t.LastPrice)
			s.VolumeBase24h = toFloat(t.Volume)
			s.VolumeQuote24h = toFloat(t.QuoteVolume)
			s.High24h = toFloat(t.HighPrice)
			s.Low24h = toFloat(t.LowPrice)
			s.Change24hPct = toFloat(t.PriceChangePercent)
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *asterFetcher) refreshIntervals(ctx context.Context) error {
	f.mu.Lock()
	fresh := time.Since(f.refreshedAt) < asterIntervalCacheTTL && len(f.intervals) > 0
	f.mu.Unlock()
	if fresh {
		return nil
	}

	data, err := f.client.GetJSON(ctx, asterFundingInfoURL)
	if err != nil {
		return fmt.Errorf("failed to fetch funding info: %w", err)
	}
	var infos []asterFundingInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		return fmt.Errorf("failed to decode funding info: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.intervals = make(map[string]float64, len(infos))
	for _, i := range infos {
		if i.FundingIntervalHours > 0 {
			f.intervals[i.Symbol] = float64(i.FundingIntervalHours)
		}
	}
	f.refreshedAt = time.Now()
	return nil
}

func (f *asterFetcher) fetchTickers(ctx context.Context) (map[string]asterTicker, error) {
	data, err := f.client.GetJSON(ctx, asterTickerURL)
	if err != nil {
		return nil, err
	}
	var listing []asterTicker
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode 24h tickers: %w", err)
	}
	out := make(map[string]asterTicker, len(listing))
	for _, t := range listing {
		out[t.Symbol] = t
	}
	return out, nil
}
