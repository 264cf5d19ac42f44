package collector

import "strconv"

// toFloat parses the string-encoded numbers most venue APIs ship. Empty or
// malformed values become 0 rather than failing the whole listing.
func toFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
