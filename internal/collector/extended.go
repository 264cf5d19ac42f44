package collector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/perpscan/perpscan/internal/httpx"
	"github.com/perpscan/perpscan/internal/models"
)

const extendedMarketsURL = "https://api.extended.exchange/api/v1/info/markets"

type extendedResponse struct {
	Status string `json:"status"`
	Data   []struct {
		Name        string `json:"name"`
		Status      string `json:"status"`
		MarketStats struct {
			MarkPrice        string `json:"markPrice"`
			IndexPrice       string `json:"indexPrice"`
			LastPrice        string `json:"lastPrice"`
			FundingRate      string `json:"fundingRate"`
			OpenInterest     string `json:"openInterest"`
			DailyVolumeBase  string `json:"dailyVolumeBase"`
			DailyVolume      string `json:"dailyVolume"`
			DailyHigh        string `json:"dailyHigh"`
			DailyLow         string `json:"dailyLow"`
			DailyPriceChange string `json:"dailyPriceChangePercentage"`
		} `json:"marketStats"`
	} `json:"data"`
}

// NewExtendedFetch returns the polling fetch for Extended. Funding there is
// paid hourly and the raw rate is already per hour.
func NewExtendedFetch(client *httpx.Client) FetchFunc {
	return func(ctx context.Context) ([]models.Snapshot, error) {
		data, err := client.GetJSON(ctx, extendedMarketsURL)
		if err != nil {
			return nil, err
		}

		var resp extendedResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode markets response: %w", err)
		}
		if resp.Status != "OK" {
			return nil, fmt.Errorf("markets response status %q", resp.Status)
		}

		out := make([]models.Snapshot, 0, len(resp.Data))
		for _, m := range resp.Data {
			if m.Status != "" && m.Status != "ACTIVE" {
				continue
			}
			st := m.MarketStats
			out = append(out, models.Snapshot{
				Symbol:          m.Name,
				MarkPrice:       toFloat(st.MarkPrice),
				IndexPrice:      toFloat(st.IndexPrice),
				LastPrice:       toFloat(st.LastPrice),
				OpenInterest:    toFloat(st.OpenInterest),
				FundingRate:     toFloat(st.FundingRate),
				FundingInterval: 1,
				VolumeBase24h:   toFloat(st.DailyVolumeBase),
				VolumeQuote24h:  toFloat(st.DailyVolume),
				High24h:         toFloat(st.DailyHigh),
				Low24h:          toFloat(st.DailyLow),
				Change24hPct:    toFloat(st.DailyPriceChange) * 100,
			})
		}
		return out, nil
	}
}
