package collector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/perpscan/perpscan/internal/models"
)

const edgexStreamURL = "wss://quote.edgex.exchange/api/v1/public/ws"

type edgexFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Content struct {
		Data []edgexTicker `json:"data"`
	} `json:"content"`
}

type edgexTicker struct {
	ContractName string `json:"contractName"`
	MarkPrice    string `json:"markPrice"`
	IndexPrice   string `json:"indexPrice"`
	LastPrice    string `json:"lastPrice"`
	FundingRate  string `json:"fundingRate"`
	OpenInterest string `json:"openInterest"`
	Size         string `json:"size"`
	Value        string `json:"value"`
	High         string `json:"high"`
	Low          string `json:"low"`
	PriceChange  string `json:"priceChangePercent"`
}

// NewEdgeXStream returns the streaming config for edgeX. Contract names carry
// a USD suffix (BTCUSD); funding is settled every 4 hours.
func NewEdgeXStream() StreamConfig {
	return StreamConfig{
		URL: edgexStreamURL,
		Subscriptions: []interface{}{
			map[string]string{"type": "subscribe", "channel": "ticker.all"},
		},
		Handle: handleEdgeXFrame,
	}
}

func handleEdgeXFrame(data []byte, emit func(models.Snapshot)) error {
	// Server pings arrive as bare {"type":"ping"} frames.
	var frame edgexFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	if frame.Type != "quote-event" || !strings.HasPrefix(frame.Channel, "ticker") {
		return nil
	}

	for _, t := range frame.Content.Data {
		if t.ContractName == "" {
			continue
		}
		emit(models.Snapshot{
			Symbol:          t.ContractName,
			MarkPrice:       toFloat(t.MarkPrice),
			IndexPrice:      toFloat(t.IndexPrice),
			LastPrice:       toFloat(t.LastPrice),
			OpenInterest:    toFloat(t.OpenInterest),
			FundingRate:     toFloat(t.FundingRate),
			FundingInterval: 4,
			VolumeBase24h:   toFloat(t.Size),
			VolumeQuote24h:  toFloat(t.Value),
			High24h:         toFloat(t.High),
			Low24h:          toFloat(t.Low),
			Change24hPct:    toFloat(t.PriceChange) * 100,
		})
	}
	return nil
}
