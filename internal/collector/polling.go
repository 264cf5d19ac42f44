package collector

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/perpscan/perpscan/internal/metrics"
	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/store"
	"github.com/perpscan/perpscan/internal/venues"
)

// FetchFunc performs one request against a venue and returns the parsed
// listing. Implementations leave Venue, RecordedAt and OpenInterestUSD unset;
// the base fills them at flush time.
type FetchFunc func(ctx context.Context) ([]models.Snapshot, error)

// PollingCollector samples a request/response venue on the shared 15-second
// grid: fetch, fill the buffer, persist, clear. Transient failures are logged
// and surface through the status row; the loop never stops on them.
type PollingCollector struct {
	*base
	fetch FetchFunc
}

// NewPollingCollector builds a polling collector for one venue.
func NewPollingCollector(v venues.Venue, fetch FetchFunc, snapshots *store.SnapshotRepo, status *store.StatusRepo, reg *metrics.Registry, log zerolog.Logger) *PollingCollector {
	return &PollingCollector{
		base:  newBase(v, snapshots, status, reg, log),
		fetch: fetch,
	}
}

// Run executes the polling loop until ctx is cancelled. It is invoked by the
// manager in a dedicated goroutine.
func (c *PollingCollector) Run(ctx context.Context) {
	c.mu.Lock()
	c.startedAt = time.Now()
	c.mu.Unlock()
	c.setState(ctx, models.StatusRunning, "")
	c.log.Info().Msg("Polling collector started")

	go c.statusReporter(ctx)

	for {
		wait := time.Until(nextGridTick(time.Now()))
		select {
		case <-ctx.Done():
			// Final flush so the last poll is not lost on shutdown.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.flush(flushCtx); err != nil {
				c.log.Warn().Err(err).Msg("Final flush failed")
			}
			cancel()
			c.setState(context.Background(), models.StatusStopped, "")
			c.log.Info().Msg("Polling collector stopped")
			return
		case <-time.After(wait):
			c.tick(ctx)
		}
	}
}

func (c *PollingCollector) tick(ctx context.Context) {
	c.mu.Lock()
	c.counters.LastPollAt = time.Now()
	c.mu.Unlock()

	rows, err := c.fetch(ctx)
	if err != nil {
		c.recordError(ctx, err)
		return
	}

	c.updateAll(rows)

	if err := c.flush(ctx); err != nil {
		c.recordError(ctx, err)
		return
	}

	c.setState(ctx, models.StatusRunning, "")
}
