package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpscan/perpscan/internal/models"
)

func TestToFloat(t *testing.T) {
	assert.Equal(t, 0.0, toFloat(""))
	assert.Equal(t, 0.0, toFloat("not a number"))
	assert.Equal(t, -0.0000125, toFloat("-0.0000125"))
	assert.Equal(t, 65000.5, toFloat("65000.5"))
}

func TestParseHLInfo(t *testing.T) {
	payload := []byte(`[
		{"universe":[
			{"name":"BTC"},
			{"name":"OLD","isDelisted":true},
			{"name":"ETH"}
		]},
		[
			{"funding":"0.0000125","markPx":"65000","oraclePx":"64990","midPx":"65001","openInterest":"1200","dayNtlVlm":"90000000","prevDayPx":"64000"},
			{"funding":"0.0001","markPx":"1","oraclePx":"1","midPx":"1","openInterest":"1","dayNtlVlm":"1","prevDayPx":"1"},
			{"funding":"-0.00002","markPx":"3500","oraclePx":"3499","midPx":"3500.5","openInterest":"8000","dayNtlVlm":"40000000","prevDayPx":"3600"}
		]
	]`)

	rows, err := parseHLInfo(payload, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	btc := rows[0]
	assert.Equal(t, "BTC", btc.Symbol)
	assert.Equal(t, 65000.0, btc.MarkPrice)
	assert.Equal(t, 0.0000125, btc.FundingRate)
	assert.Equal(t, 8.0, btc.FundingInterval)
	assert.InDelta(t, 1.5625, btc.Change24hPct, 1e-9)

	assert.Equal(t, "ETH", rows[1].Symbol)
}

func TestParseHLInfoBuilderDexPrefixesSymbols(t *testing.T) {
	payload := []byte(`[
		{"universe":[{"name":"ETH"}]},
		[{"funding":"0.00001","markPx":"3500","oraclePx":"3499","midPx":"3500","openInterest":"10","dayNtlVlm":"100","prevDayPx":"3400"}]
	]`)

	rows, err := parseHLInfo(payload, "hyena")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hyena:ETH", rows[0].Symbol)
}

func TestParseHLInfoMalformed(t *testing.T) {
	_, err := parseHLInfo([]byte(`{"not":"an array"}`), "")
	assert.Error(t, err)

	_, err = parseHLInfo([]byte(`[{"universe":[]}]`), "")
	assert.Error(t, err)
}

func collect(t *testing.T, h HandleFunc, data []byte) []models.Snapshot {
	t.Helper()
	var out []models.Snapshot
	err := h(data, func(s models.Snapshot) { out = append(out, s) })
	require.NoError(t, err)
	return out
}

func TestHandleLighterMessage(t *testing.T) {
	msg := []byte(`{
		"type": "update/market_stats",
		"market_stats": {
			"0": {"symbol":"BTC","mark_price":"65000","index_price":"64990","last_trade_price":"65010","current_funding_rate":"0.0012","open_interest":"500","daily_quote_token_volume":"1000000"}
		}
	}`)

	rows := collect(t, handleLighterMessage, msg)
	require.Len(t, rows, 1)
	assert.Equal(t, "BTC", rows[0].Symbol)
	assert.Equal(t, 0.0012, rows[0].FundingRate)
	assert.Equal(t, 1.0, rows[0].FundingInterval)

	// Frames on other channels are ignored without error.
	assert.Empty(t, collect(t, handleLighterMessage, []byte(`{"type":"ping"}`)))
}

func TestHandleParadexFrame(t *testing.T) {
	msg := []byte(`{
		"method": "subscription",
		"params": {
			"channel": "markets_summary",
			"data": {"symbol":"BTC-USD-PERP","mark_price":"65000","underlying_price":"64990","funding_rate":"0.0002","open_interest":"1234","volume_24h":"9000000"}
		}
	}`)

	rows := collect(t, handleParadexFrame, msg)
	require.Len(t, rows, 1)
	assert.Equal(t, "BTC-USD-PERP", rows[0].Symbol)
	assert.Equal(t, 8.0, rows[0].FundingInterval)

	// Options on the same channel are skipped.
	opt := []byte(`{
		"method": "subscription",
		"params": {"channel":"markets_summary","data":{"symbol":"BTC-USD-70000-C","mark_price":"100"}}
	}`)
	assert.Empty(t, collect(t, handleParadexFrame, opt))
}

func TestHandlePacificaFrame(t *testing.T) {
	msg := []byte(`{
		"channel": "prices",
		"data": [
			{"symbol":"SOL","mark":"150","oracle":"149.9","mid":"150.1","funding":"0.00001","open_interest":"20000","volume_24h":"5000000","yesterday_price":"140"},
			{"symbol":"","mark":"1"}
		]
	}`)

	rows := collect(t, handlePacificaFrame, msg)
	require.Len(t, rows, 1)
	assert.Equal(t, "SOL", rows[0].Symbol)
	assert.Equal(t, 1.0, rows[0].FundingInterval)
	assert.InDelta(t, 7.142857, rows[0].Change24hPct, 1e-5)
}

func TestHandleEdgeXFrame(t *testing.T) {
	msg := []byte(`{
		"type": "quote-event",
		"channel": "ticker.all",
		"content": {"data": [
			{"contractName":"BTCUSD","markPrice":"65000","indexPrice":"64990","lastPrice":"65005","fundingRate":"0.0001","openInterest":"300","size":"1200","value":"78000000"}
		]}
	}`)

	rows := collect(t, handleEdgeXFrame, msg)
	require.Len(t, rows, 1)
	assert.Equal(t, "BTCUSD", rows[0].Symbol)
	assert.Equal(t, 4.0, rows[0].FundingInterval)

	assert.Empty(t, collect(t, handleEdgeXFrame, []byte(`{"type":"ping"}`)))
}
