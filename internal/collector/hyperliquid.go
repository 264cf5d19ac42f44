package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/perpscan/perpscan/internal/httpx"
	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/venues"
)

const hyperliquidInfoURL = "https://api.hyperliquid.xyz/info"

// builderDexes maps builder-deployed DEXs served through the Hyperliquid info
// endpoint to their venue tags. Their markets come back with the same payload
// shape; symbols are prefixed with the dex name (e.g. "hyena:ETH").
var builderDexes = map[venues.Venue]string{
	venues.Hyena: "hyena",
	venues.XYZ:   "xyz",
	venues.FLX:   "flx",
	venues.VNTL:  "vntl",
	venues.KM:    "km",
}

type hlInfoRequest struct {
	Type string `json:"type"`
	Dex  string `json:"dex,omitempty"`
}

type hlMeta struct {
	Universe []struct {
		Name       string `json:"name"`
		IsDelisted bool   `json:"isDelisted"`
	} `json:"universe"`
}

type hlAssetCtx struct {
	Funding      string `json:"funding"`
	MarkPx       string `json:"markPx"`
	OraclePx     string `json:"oraclePx"`
	MidPx        string `json:"midPx"`
	OpenInterest string `json:"openInterest"`
	DayNtlVlm    string `json:"dayNtlVlm"`
	DayBaseVlm   string `json:"dayBaseVlm"`
	PrevDayPx    string `json:"prevDayPx"`
}

// NewHyperliquidFetch returns the fetch for the main Hyperliquid perp universe.
func NewHyperliquidFetch(client *httpx.Client) FetchFunc {
	return newHLInfoFetch(client, "")
}

// NewBuilderDexFetch returns the fetch for a builder-deployed DEX riding on
// the Hyperliquid info endpoint.
func NewBuilderDexFetch(client *httpx.Client, v venues.Venue) (FetchFunc, error) {
	dex, ok := builderDexes[v]
	if !ok {
		return nil, fmt.Errorf("venue %s is not a builder dex", v)
	}
	return newHLInfoFetch(client, dex), nil
}

func newHLInfoFetch(client *httpx.Client, dex string) FetchFunc {
	return func(ctx context.Context) ([]models.Snapshot, error) {
		body, err := json.Marshal(hlInfoRequest{Type: "metaAndAssetCtxs", Dex: dex})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal info request: %w", err)
		}

		data, err := client.PostJSON(ctx, hyperliquidInfoURL, strings.NewReader(string(body)))
		if err != nil {
			return nil, err
		}
		return parseHLInfo(data, dex)
	}
}

// parseHLInfo decodes the [meta, assetCtxs] pair. The two arrays are
// positionally aligned: universe[i] describes assetCtxs[i].
func parseHLInfo(data []byte, dex string) ([]models.Snapshot, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode info response: %w", err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("info response has %d elements, want 2", len(raw))
	}

	var meta hlMeta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return nil, fmt.Errorf("failed to decode universe meta: %w", err)
	}
	var ctxs []hlAssetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return nil, fmt.Errorf("failed to decode asset contexts: %w", err)
	}
	if len(ctxs) < len(meta.Universe) {
		return nil, fmt.Errorf("asset contexts shorter than universe: %d < %d", len(ctxs), len(meta.Universe))
	}

	out := make([]models.Snapshot, 0, len(meta.Universe))
	for i, asset := range meta.Universe {
		if asset.IsDelisted {
			continue
		}
		c := ctxs[i]

		symbol := asset.Name
		if dex != "" && !strings.Contains(symbol, ":") {
			symbol = dex + ":" + symbol
		}

		mark := toFloat(c.MarkPx)
		prev := toFloat(c.PrevDayPx)
		var change float64
		if prev > 0 {
			change = (mark - prev) / prev * 100
		}

		out = append(out, models.Snapshot{
			Symbol:          symbol,
			MarkPrice:       mark,
			IndexPrice:      toFloat(c.OraclePx),
			LastPrice:       toFloat(c.MidPx),
			OpenInterest:    toFloat(c.OpenInterest),
			FundingRate:     toFloat(c.Funding),
			FundingInterval: 8,
			VolumeBase24h:   toFloat(c.DayBaseVlm),
			VolumeQuote24h:  toFloat(c.DayNtlVlm),
			Change24hPct:    change,
		})
	}
	return out, nil
}
