// Package venues defines the closed set of supported derivatives venues and
// their funding-rate characteristics.
package venues

// Venue is a lowercase tag identifying one derivatives venue.
type Venue string

const (
	Hyperliquid Venue = "hyperliquid"
	Lighter     Venue = "lighter"
	Aster       Venue = "aster"
	Paradex     Venue = "paradex"
	Extended    Venue = "extended"
	Hyena       Venue = "hyena"
	XYZ         Venue = "xyz"
	FLX         Venue = "flx"
	VNTL        Venue = "vntl"
	KM          Venue = "km"
	Pacifica    Venue = "pacifica"
	Variational Venue = "variational"
	EdgeX       Venue = "edgex"
)

// Transport describes how a collector talks to its venue.
type Transport int

const (
	// TransportPolling performs one request per 15s grid tick.
	TransportPolling Transport = iota
	// TransportStreaming keeps a persistent websocket subscription open.
	TransportStreaming
)

// Config holds per-venue funding-rate and transport parameters.
type Config struct {
	Venue         Venue
	Transport     Transport
	IntervalHours float64 // funding payment cadence
	RawInPercent  bool    // raw rate already expressed in percent
	VariableRate  bool    // venue reports its own interval per row
}

var registry = map[Venue]Config{
	Hyperliquid: {Venue: Hyperliquid, Transport: TransportPolling, IntervalHours: 8},
	Hyena:       {Venue: Hyena, Transport: TransportPolling, IntervalHours: 8},
	XYZ:         {Venue: XYZ, Transport: TransportPolling, IntervalHours: 8},
	FLX:         {Venue: FLX, Transport: TransportPolling, IntervalHours: 8},
	VNTL:        {Venue: VNTL, Transport: TransportPolling, IntervalHours: 8},
	KM:          {Venue: KM, Transport: TransportPolling, IntervalHours: 8},
	Variational: {Venue: Variational, Transport: TransportPolling, IntervalHours: 8},
	Paradex:     {Venue: Paradex, Transport: TransportStreaming, IntervalHours: 8},
	EdgeX:       {Venue: EdgeX, Transport: TransportStreaming, IntervalHours: 4},
	Lighter:     {Venue: Lighter, Transport: TransportStreaming, IntervalHours: 1, RawInPercent: true},
	Extended:    {Venue: Extended, Transport: TransportPolling, IntervalHours: 1},
	Pacifica:    {Venue: Pacifica, Transport: TransportStreaming, IntervalHours: 1},
	Aster:       {Venue: Aster, Transport: TransportPolling, IntervalHours: 8, VariableRate: true},
}

// All returns every supported venue in a stable order.
func All() []Venue {
	return []Venue{
		Hyperliquid, Lighter, Aster, Paradex, Extended, Hyena,
		XYZ, FLX, VNTL, KM, Pacifica, Variational, EdgeX,
	}
}

// Lookup returns the config for a venue tag and whether the tag is known.
func Lookup(v Venue) (Config, bool) {
	cfg, ok := registry[v]
	return cfg, ok
}

// IsValid reports whether v is a member of the closed venue set.
func IsValid(v Venue) bool {
	_, ok := registry[v]
	return ok
}

// String implements fmt.Stringer.
func (v Venue) String() string { return string(v) }
