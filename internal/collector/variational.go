package collector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/perpscan/perpscan/internal/httpx"
	"github.com/perpscan/perpscan/internal/models"
)

const variationalStatsURL = "https://api.variational.io/v1/metadata/stats"

type variationalStats struct {
	Listings []struct {
		Ticker          string  `json:"ticker"`
		MarkPrice       string  `json:"mark_price"`
		IndexPrice      string  `json:"index_price"`
		LastTradedPrice string  `json:"last_traded_price"`
		FundingRate     string  `json:"funding_rate"`
		FundingInterval float64 `json:"funding_interval_s"`
		OpenInterest    string  `json:"open_interest"`
		Volume24h       string  `json:"volume_24h"`
		PriceChange24h  string  `json:"price_change_24h"`
	} `json:"listings"`
}

// NewVariationalFetch returns the polling fetch for Variational OmniX
// perpetuals. The interval comes back in seconds per listing; 8h markets are
// the norm.
func NewVariationalFetch(client *httpx.Client) FetchFunc {
	return func(ctx context.Context) ([]models.Snapshot, error) {
		data, err := client.GetJSON(ctx, variationalStatsURL)
		if err != nil {
			return nil, err
		}

		var resp variationalStats
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode stats response: %w", err)
		}

		out := make([]models.Snapshot, 0, len(resp.Listings))
		for _, l := range resp.Listings {
			interval := l.FundingInterval / 3600
			if interval <= 0 {
				interval = 8
			}
			out = append(out, models.Snapshot{
				Symbol:          l.Ticker,
				MarkPrice:       toFloat(l.MarkPrice),
				IndexPrice:      toFloat(l.IndexPrice),
				LastPrice:       toFloat(l.LastTradedPrice),
				OpenInterest:    toFloat(l.OpenInterest),
				FundingRate:     toFloat(l.FundingRate),
				FundingInterval: interval,
				VolumeQuote24h:  toFloat(l.Volume24h),
				Change24hPct:    toFloat(l.PriceChange24h),
			})
		}
		return out, nil
	}
}
