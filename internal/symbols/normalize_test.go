package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"BTC-USD-PERP", "BTC"},
		{"BTC-PERP", "BTC"},
		{"BTC-USD", "BTC"},
		{"BTCUSDT", "BTC"},
		{"BTCUSD", "BTC"},
		{"hyena:BTC", "BTC"},
		{"hyena:ETH", "ETH"},
		{"1000PEPE", "PEPE"},
		{"1000PEPEUSDT", "PEPE"},
		{"PEPE", "PEPE"},
		{"1INCH", "1INCH"},
		{"ETH/USDT", "ETH"},
		{"ETH_USDT", "ETH"},
		{"eth-usd-perp", "ETH"},
		{"SUSD", "SUSD"},
		{"USD", "USD"},
		{"", ""},
		{"  SOL-PERP ", "SOL"},
		{"kBONK", "KBONK"},
		{"BTCUSDUSD", "BTC"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "Normalize(%q)", tc.in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"BTC-USD-PERP", "BTCUSDT", "1000PEPE", "hyena:BTC", "1INCH",
		"ETH/USDT", "kBONK", "BTCUSDUSD", "SUSD", "",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "Normalize not idempotent for %q", in)
	}
}

func TestNormalizeCollapsesAcrossVenues(t *testing.T) {
	variants := []string{"BTC-USD-PERP", "BTCUSDT", "BTCUSD", "hyena:BTC", "BTC"}
	for _, v := range variants {
		assert.Equal(t, "BTC", Normalize(v))
	}
}
