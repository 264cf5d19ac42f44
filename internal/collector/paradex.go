package collector

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/perpscan/perpscan/internal/models"
)

const (
	paradexStreamURL = "wss://ws.api.prod.paradex.trade/v1"

	// Paradex drops idle subscriptions server-side; redialling just under the
	// observed cutoff keeps the markets_summary feed continuous.
	paradexReconnectEvery = 45 * time.Second
)

type paradexFrame struct {
	Method string `json:"method"`
	Params struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	} `json:"params"`
}

type paradexSummary struct {
	Symbol         string `json:"symbol"`
	MarkPrice      string `json:"mark_price"`
	UnderlyingP    string `json:"underlying_price"`
	LastTradePrice string `json:"last_traded_price"`
	FundingRate    string `json:"funding_rate"`
	OpenInterest   string `json:"open_interest"`
	VolumeQuote24h string `json:"volume_24h"`
	PriceChange24h string `json:"price_change_rate_24h"`
}

// NewParadexStream returns the streaming config for Paradex. Only perpetual
// markets (suffix -PERP) are tracked; options on the same channel are skipped.
func NewParadexStream() StreamConfig {
	return StreamConfig{
		URL: paradexStreamURL,
		Subscriptions: []interface{}{
			map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "subscribe",
				"params":  map[string]string{"channel": "markets_summary"},
				"id":      1,
			},
		},
		Handle:              handleParadexFrame,
		PreventiveReconnect: paradexReconnectEvery,
	}
}

func handleParadexFrame(data []byte, emit func(models.Snapshot)) error {
	var frame paradexFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	if frame.Method != "subscription" || frame.Params.Channel != "markets_summary" {
		return nil
	}

	var s paradexSummary
	if err := json.Unmarshal(frame.Params.Data, &s); err != nil {
		return fmt.Errorf("failed to decode markets summary: %w", err)
	}
	if !strings.HasSuffix(s.Symbol, "-PERP") {
		return nil
	}

	emit(models.Snapshot{
		Symbol:          s.Symbol,
		MarkPrice:       toFloat(s.MarkPrice),
		IndexPrice:      toFloat(s.UnderlyingP),
		LastPrice:       toFloat(s.LastTradePrice),
		OpenInterest:    toFloat(s.OpenInterest),
		FundingRate:     toFloat(s.FundingRate),
		FundingInterval: 8,
		VolumeQuote24h:  toFloat(s.VolumeQuote24h),
		Change24hPct:    toFloat(s.PriceChange24h) * 100,
	})
	return nil
}
