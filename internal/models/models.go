// Package models holds the row types shared by the collectors, the rollup
// pipeline, the derived-metric engines and the query layer.
package models

import "time"

// Snapshot is one raw 15-second observation of a (venue, symbol) market.
// Rows are append-only and are deleted once rolled up into minute aggregates.
type Snapshot struct {
	ID              int64   `db:"id" json:"id"`
	Venue           string  `db:"venue" json:"venue"`
	Symbol          string  `db:"symbol" json:"symbol"`
	MarkPrice       float64 `db:"mark_price" json:"mark_price"`
	IndexPrice      float64 `db:"index_price" json:"index_price"`
	OpenInterest    float64 `db:"open_interest" json:"open_interest"`
	OpenInterestUSD float64 `db:"open_interest_usd" json:"open_interest_usd"`
	LastPrice       float64 `db:"last_price" json:"last_price"`
	FundingRate     float64 `db:"funding_rate" json:"funding_rate"`
	FundingInterval float64 `db:"funding_interval_hours" json:"funding_interval_hours"`
	VolumeBase24h   float64 `db:"volume_base_24h" json:"volume_base_24h"`
	VolumeQuote24h  float64 `db:"volume_quote_24h" json:"volume_quote_24h"`
	Low24h          float64 `db:"low_24h" json:"low_24h"`
	High24h         float64 `db:"high_24h" json:"high_24h"`
	Change24hPct    float64 `db:"change_24h_pct" json:"change_24h_pct"`
	RecordedAt      int64   `db:"recorded_at" json:"recorded_at"` // wall clock, ms
}

// Aggregate is a compacted time bucket of snapshots. The same shape backs the
// 1-minute table (bucket = minute start) and the permanent 1-hour table
// (bucket = hour start); for hour rows SampleCount sums the contributing
// minute rows' counts.
type Aggregate struct {
	Venue            string  `db:"venue" json:"venue"`
	Symbol           string  `db:"symbol" json:"symbol"`
	NormalizedSymbol string  `db:"normalized_symbol" json:"normalized_symbol"`
	Bucket           int64   `db:"bucket_ts" json:"bucket_ts"` // unix seconds
	AvgMarkPrice     float64 `db:"avg_mark_price" json:"avg_mark_price"`
	MinPrice         float64 `db:"min_price" json:"min_price"`
	MaxPrice         float64 `db:"max_price" json:"max_price"`
	PriceVolatility  float64 `db:"price_volatility" json:"price_volatility"` // (max-min)/avg*100
	VolumeBase24h    float64 `db:"volume_base_24h" json:"volume_base_24h"`
	VolumeQuote24h   float64 `db:"volume_quote_24h" json:"volume_quote_24h"`
	AvgOIUSD         float64 `db:"avg_oi_usd" json:"avg_oi_usd"`
	MaxOIUSD         float64 `db:"max_oi_usd" json:"max_oi_usd"`
	AvgFundingRate   float64 `db:"avg_funding_rate" json:"avg_funding_rate"`
	MinFundingRate   float64 `db:"min_funding_rate" json:"min_funding_rate"`
	MaxFundingRate   float64 `db:"max_funding_rate" json:"max_funding_rate"`
	AvgFundingAPR    float64 `db:"avg_funding_apr" json:"avg_funding_apr"`
	SampleCount      int64   `db:"sample_count" json:"sample_count"`
}

// NormalizedToken is the live cross-venue view: the most recent market state
// per (normalized symbol, venue), refreshed every 5 minutes.
type NormalizedToken struct {
	NormalizedSymbol string    `db:"normalized_symbol" json:"normalized_symbol"`
	Venue            string    `db:"venue" json:"venue"`
	Symbol           string    `db:"symbol" json:"symbol"`
	MarkPrice        float64   `db:"mark_price" json:"mark_price"`
	IndexPrice       float64   `db:"index_price" json:"index_price"`
	OpenInterest     float64   `db:"open_interest" json:"open_interest"`
	OpenInterestUSD  float64   `db:"open_interest_usd" json:"open_interest_usd"`
	VolumeQuote24h   float64   `db:"volume_quote_24h" json:"volume_quote_24h"`
	FundingRate      float64   `db:"funding_rate" json:"funding_rate"`
	FundingRate1h    float64   `db:"funding_rate_1h" json:"funding_rate_1h"`
	FundingAPR       float64   `db:"funding_apr" json:"funding_apr"`
	ATR14            float64   `db:"atr_14" json:"atr_14"`
	Volatility24h    float64   `db:"volatility_24h" json:"volatility_24h"`
	Volatility7d     float64   `db:"volatility_7d" json:"volatility_7d"`
	BollingerWidth   float64   `db:"bollinger_width" json:"bollinger_width"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Unified source tags.
const (
	SourceLive     = "live"
	SourceImport   = "import"
	SourceMigrated = "migrated"
)

// UnifiedRow is one funding observation in the cross-venue table, keyed by
// (normalized symbol, venue, funding time). FundingTime is always seconds.
type UnifiedRow struct {
	NormalizedSymbol string    `db:"normalized_symbol" json:"normalized_symbol"`
	Venue            string    `db:"venue" json:"venue"`
	FundingTime      int64     `db:"funding_time" json:"funding_time"`
	Symbol           string    `db:"symbol" json:"symbol"`
	RateRaw          float64   `db:"rate_raw" json:"rate_raw"`
	RateRawPercent   float64   `db:"rate_raw_percent" json:"rate_raw_percent"`
	IntervalHours    float64   `db:"interval_hours" json:"interval_hours"`
	Rate1hPercent    float64   `db:"rate_1h_percent" json:"rate_1h_percent"`
	RateAPR          float64   `db:"rate_apr" json:"rate_apr"`
	Source           string    `db:"source" json:"source"`
	SyncedAt         time.Time `db:"synced_at" json:"synced_at"`
	OpenInterest     float64   `db:"open_interest" json:"open_interest"`
}

// MAWindow tags the canonical moving-average windows.
type MAWindow string

const (
	Window24h MAWindow = "24h"
	Window3d  MAWindow = "3d"
	Window7d  MAWindow = "7d"
	Window14d MAWindow = "14d"
	Window30d MAWindow = "30d"
	// WindowLive is the synthetic arbitrage window derived from the most
	// recent unified rows.
	WindowLive MAWindow = "live"
)

// MAWindows lists the canonical MA windows in ascending length.
var MAWindows = []MAWindow{Window24h, Window3d, Window7d, Window14d, Window30d}

// Duration returns the trailing span a window covers. WindowLive has no span.
func (w MAWindow) Duration() time.Duration {
	switch w {
	case Window24h:
		return 24 * time.Hour
	case Window3d:
		return 3 * 24 * time.Hour
	case Window7d:
		return 7 * 24 * time.Hour
	case Window14d:
		return 14 * 24 * time.Hour
	case Window30d:
		return 30 * 24 * time.Hour
	}
	return 0
}

// MinSamples returns the minimum sample threshold below which an MA row is
// not written.
func (w MAWindow) MinSamples() int {
	switch w {
	case Window24h:
		return 3
	case Window3d:
		return 6
	case Window7d:
		return 14
	case Window14d:
		return 28
	case Window30d:
		return 60
	}
	return 1
}

// MARow is one precomputed per-venue moving average.
type MARow struct {
	NormalizedSymbol string    `db:"normalized_symbol" json:"normalized_symbol"`
	Venue            string    `db:"venue" json:"venue"`
	Window           MAWindow  `db:"window_tag" json:"window"`
	MARate1h         float64   `db:"ma_rate_1h" json:"ma_rate_1h"`
	MAAPR            float64   `db:"ma_apr" json:"ma_apr"`
	SampleCount      int64     `db:"sample_count" json:"sample_count"`
	StdDev           float64   `db:"stddev" json:"stddev"`
	MinRate          float64   `db:"min_rate" json:"min_rate"`
	MaxRate          float64   `db:"max_rate" json:"max_rate"`
	WindowStart      int64     `db:"window_start" json:"window_start"`
	WindowEnd        int64     `db:"window_end" json:"window_end"`
	CalculatedAt     time.Time `db:"calculated_at" json:"calculated_at"`
}

// CrossMARow aggregates the latest per-venue MA rows for one symbol/window.
type CrossMARow struct {
	NormalizedSymbol string    `db:"normalized_symbol" json:"normalized_symbol"`
	Window           MAWindow  `db:"window_tag" json:"window"`
	AvgRate1h        float64   `db:"avg_rate_1h" json:"avg_rate_1h"`
	WeightedRate1h   float64   `db:"weighted_rate_1h" json:"weighted_rate_1h"`
	AvgAPR           float64   `db:"avg_apr" json:"avg_apr"`
	MinExchangeMA    float64   `db:"min_exchange_ma" json:"min_exchange_ma"`
	MaxExchangeMA    float64   `db:"max_exchange_ma" json:"max_exchange_ma"`
	Spread           float64   `db:"spread" json:"spread"`
	ExchangeCount    int64     `db:"exchange_count" json:"exchange_count"`
	CalculatedAt     time.Time `db:"calculated_at" json:"calculated_at"`
}

// ArbRow is one pairwise funding-arbitrage opportunity.
type ArbRow struct {
	NormalizedSymbol string    `db:"normalized_symbol" json:"normalized_symbol"`
	LongVenue        string    `db:"long_venue" json:"long_venue"`
	ShortVenue       string    `db:"short_venue" json:"short_venue"`
	Window           MAWindow  `db:"window_tag" json:"window"`
	LongRate         float64   `db:"long_rate" json:"long_rate"`
	ShortRate        float64   `db:"short_rate" json:"short_rate"`
	Spread           float64   `db:"spread" json:"spread"`
	LongAPR          float64   `db:"long_apr" json:"long_apr"`
	ShortAPR         float64   `db:"short_apr" json:"short_apr"`
	SpreadAPR        float64   `db:"spread_apr" json:"spread_apr"`
	StabilityScore   int       `db:"stability_score" json:"stability_score"`
	IsStable         bool      `db:"is_stable" json:"is_stable"`
	CalculatedAt     time.Time `db:"calculated_at" json:"calculated_at"`
}

// Collector status tags.
const (
	StatusRunning   = "running"
	StatusConnected = "connected"
	StatusError     = "error"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

// TrackerStatus is the per-venue collector liveness row.
type TrackerStatus struct {
	Venue          string    `db:"venue" json:"venue"`
	Status         string    `db:"status" json:"status"`
	LastMessageAt  time.Time `db:"last_message_at" json:"last_message_at"`
	LastError      string    `db:"last_error" json:"last_error"`
	ReconnectCount int       `db:"reconnect_count" json:"reconnect_count"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
