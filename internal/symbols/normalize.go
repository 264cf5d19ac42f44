// Package symbols maps venue-native contract symbols to canonical base assets.
package symbols

import (
	"strings"
)

// quote suffixes in the order they are tried; "-USD-PERP" must be checked
// before "-PERP" and "-USD".
var suffixes = []string{"-USD-PERP", "-PERP", "-USD", "USDT", "USD"}

// Normalize maps a venue-native perpetual symbol to its canonical upper-case
// base asset. Examples: "BTC-USD-PERP", "BTCUSDT", "BTCUSD" and "hyena:BTC"
// all map to "BTC"; "1000PEPE" maps to "PEPE"; "1INCH" stays "1INCH".
//
// Normalize never fails: empty input returns the empty string, and the result
// is a fixpoint (Normalize(Normalize(s)) == Normalize(s)). Leading "k"/"K"
// multiplier prefixes are deliberately kept, so "kBONK" stays distinct from
// "BONK".
func Normalize(original string) string {
	s := strings.TrimSpace(original)
	if s == "" {
		return ""
	}

	// Venue prefixes like "hyena:ETH" are lowercase up to the colon.
	if i := strings.IndexByte(s, ':'); i > 0 && isLower(s[:i]) {
		s = s[i+1:]
	}

	s = strings.ToUpper(s)

	// Apply suffix / multiplier / separator stripping to a fixpoint so the
	// result is stable under re-normalization.
	for iter := 0; iter < 8; iter++ {
		next := stripOnce(s)
		if next == s {
			break
		}
		s = next
	}

	return s
}

func stripOnce(s string) string {
	for _, suf := range suffixes {
		if !strings.HasSuffix(s, suf) {
			continue
		}
		rest := strings.TrimSuffix(s, suf)
		// Bare "USD" (or anything that would vanish entirely) is kept; the
		// plain "USD" suffix additionally requires two characters to remain
		// so that symbols like "SUSD" survive.
		if rest == "" || (suf == "USD" && len(rest) < 2) {
			continue
		}
		s = rest
		break
	}

	// "1000PEPE" style multiplier prefixes, only when a letter follows so
	// that numeric-leading assets like "1INCH" are untouched.
	if strings.HasPrefix(s, "1000") && len(s) > 4 && isLetter(s[4]) {
		s = s[4:]
	}

	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

func isLower(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return len(s) > 0
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
