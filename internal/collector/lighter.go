package collector

import (
	"encoding/json"
	"fmt"

	"github.com/perpscan/perpscan/internal/models"
)

const lighterStreamURL = "wss://mainnet.zklighter.elliot.ai/stream"

type lighterMessage struct {
	Type        string                        `json:"type"`
	MarketStats map[string]lighterMarketStats `json:"market_stats"`
}

type lighterMarketStats struct {
	Symbol           string `json:"symbol"`
	MarkPrice        string `json:"mark_price"`
	IndexPrice       string `json:"index_price"`
	LastTradePrice   string `json:"last_trade_price"`
	CurrentFunding   string `json:"current_funding_rate"`
	OpenInterest     string `json:"open_interest"`
	DailyBaseVolume  string `json:"daily_base_token_volume"`
	DailyQuoteVolume string `json:"daily_quote_token_volume"`
	DailyHigh        string `json:"daily_price_high"`
	DailyLow         string `json:"daily_price_low"`
	DailyChange      string `json:"daily_price_change"`
}

// NewLighterStream returns the streaming config for Lighter. The market_stats
// channel pushes the whole book periodically; the funding rate arrives
// already expressed in percent per hour.
func NewLighterStream() StreamConfig {
	return StreamConfig{
		URL: lighterStreamURL,
		Subscriptions: []interface{}{
			map[string]string{"type": "subscribe", "channel": "market_stats/all"},
		},
		Handle: handleLighterMessage,
	}
}

func handleLighterMessage(data []byte, emit func(models.Snapshot)) error {
	var msg lighterMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to decode market stats message: %w", err)
	}
	if msg.Type != "update/market_stats" && msg.Type != "subscribed/market_stats" {
		return nil
	}

	for _, st := range msg.MarketStats {
		if st.Symbol == "" {
			continue
		}
		emit(models.Snapshot{
			Symbol:          st.Symbol,
			MarkPrice:       toFloat(st.MarkPrice),
			IndexPrice:      toFloat(st.IndexPrice),
			LastPrice:       toFloat(st.LastTradePrice),
			OpenInterest:    toFloat(st.OpenInterest),
			FundingRate:     toFloat(st.CurrentFunding),
			FundingInterval: 1,
			VolumeBase24h:   toFloat(st.DailyBaseVolume),
			VolumeQuote24h:  toFloat(st.DailyQuoteVolume),
			High24h:         toFloat(st.DailyHigh),
			Low24h:          toFloat(st.DailyLow),
			Change24hPct:    toFloat(st.DailyChange),
		})
	}
	return nil
}
