package collector

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/perpscan/perpscan/internal/httpx"
	"github.com/perpscan/perpscan/internal/metrics"
	"github.com/perpscan/perpscan/internal/store"
	"github.com/perpscan/perpscan/internal/venues"
)

// Deps bundles what every collector needs.
type Deps struct {
	Snapshots *store.SnapshotRepo
	Status    *store.StatusRepo
	Metrics   *metrics.Registry
	Log       zerolog.Logger
}

// Factories builds the factory for every supported venue. The HTTP client is
// shared across polling venues so per-host rate limits and breakers apply
// fleet-wide.
func Factories(deps Deps) (map[venues.Venue]Factory, error) {
	client := httpx.NewClient(10*time.Second, 4, 8)

	polling := func(v venues.Venue, fetch FetchFunc) Factory {
		return func() Collector {
			return NewPollingCollector(v, fetch, deps.Snapshots, deps.Status, deps.Metrics, deps.Log)
		}
	}
	streaming := func(v venues.Venue, cfg StreamConfig) Factory {
		return func() Collector {
			return NewStreamingCollector(v, cfg, deps.Snapshots, deps.Status, deps.Metrics, deps.Log)
		}
	}

	out := map[venues.Venue]Factory{
		venues.Hyperliquid: polling(venues.Hyperliquid, NewHyperliquidFetch(client)),
		venues.Aster:       polling(venues.Aster, NewAsterFetch(client)),
		venues.Extended:    polling(venues.Extended, NewExtendedFetch(client)),
		venues.Variational: polling(venues.Variational, NewVariationalFetch(client)),

		venues.Lighter:  streaming(venues.Lighter, NewLighterStream()),
		venues.Paradex:  streaming(venues.Paradex, NewParadexStream()),
		venues.Pacifica: streaming(venues.Pacifica, NewPacificaStream()),
		venues.EdgeX:    streaming(venues.EdgeX, NewEdgeXStream()),
	}

	for v := range builderDexes {
		fetch, err := NewBuilderDexFetch(client, v)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s fetch: %w", v, err)
		}
		out[v] = polling(v, fetch)
	}

	for _, v := range venues.All() {
		if _, ok := out[v]; !ok {
			return nil, fmt.Errorf("no collector registered for venue %s", v)
		}
	}
	return out, nil
}
