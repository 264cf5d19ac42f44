package collector

import (
	"encoding/json"
	"fmt"

	"github.com/perpscan/perpscan/internal/models"
)

const pacificaStreamURL = "wss://ws.pacifica.fi/ws"

type pacificaFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type pacificaPrice struct {
	Symbol       string `json:"symbol"`
	Mark         string `json:"mark"`
	Oracle       string `json:"oracle"`
	Mid          string `json:"mid"`
	Funding      string `json:"funding"`
	OpenInterest string `json:"open_interest"`
	Volume24h    string `json:"volume_24h"`
	YesterdayPx  string `json:"yesterday_price"`
}

// NewPacificaStream returns the streaming config for Pacifica. The prices
// channel pushes the whole symbol list about once a second; funding is an
// hourly decimal rate.
func NewPacificaStream() StreamConfig {
	return StreamConfig{
		URL: pacificaStreamURL,
		Subscriptions: []interface{}{
			map[string]interface{}{
				"method": "subscribe",
				"params": map[string]string{"source": "prices"},
			},
		},
		Handle: handlePacificaFrame,
	}
}

func handlePacificaFrame(data []byte, emit func(models.Snapshot)) error {
	var frame pacificaFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	if frame.Channel != "prices" {
		return nil
	}

	var prices []pacificaPrice
	if err := json.Unmarshal(frame.Data, &prices); err != nil {
		return fmt.Errorf("failed to decode prices payload: %w", err)
	}

	for _, p := range prices {
		if p.Symbol == "" {
			continue
		}
		mark := toFloat(p.Mark)
		prev := toFloat(p.YesterdayPx)
		var change float64
		if prev > 0 {
			change = (mark - prev) / prev * 100
		}
		emit(models.Snapshot{
			Symbol:          p.Symbol,
			MarkPrice:       mark,
			IndexPrice:      toFloat(p.Oracle),
			LastPrice:       toFloat(p.Mid),
			OpenInterest:    toFloat(p.OpenInterest),
			FundingRate:     toFloat(p.Funding),
			FundingInterval: 1,
			VolumeQuote24h:  toFloat(p.Volume24h),
			Change24hPct:    change,
		})
	}
	return nil
}
