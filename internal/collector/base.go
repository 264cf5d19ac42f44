// Package collector implements the per-venue market-data collectors: one
// long-lived worker per venue feeding the 15-second snapshot stream.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/perpscan/perpscan/internal/metrics"
	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/store"
	"github.com/perpscan/perpscan/internal/venues"
)

// gridInterval is the wall-clock sampling grid shared by all venues.
const gridInterval = 15 * time.Second

// statusReportInterval is how often a running collector refreshes its
// tracker_status row.
const statusReportInterval = 30 * time.Second

// Counters tracks one collector's activity.
type Counters struct {
	Snapshots      int64     `json:"snapshots"`
	LastPollAt     time.Time `json:"last_poll_at"`
	LastSuccessAt  time.Time `json:"last_success_at"`
	ReconnectCount int       `json:"reconnect_count"`
}

// DebugInfo is the payload of the debug operation.
type DebugInfo struct {
	Venue      string    `json:"venue"`
	Status     string    `json:"status"`
	BufferSize int       `json:"buffer_size"`
	Counters   Counters  `json:"counters"`
	LastError  string    `json:"last_error"`
	StartedAt  time.Time `json:"started_at"`
}

// base carries the state shared by streaming and polling collectors: the
// in-memory buffer of latest per-symbol snapshots, counters, status
// reporting and the grid-aligned flush.
type base struct {
	venue     venues.Venue
	snapshots *store.SnapshotRepo
	status    *store.StatusRepo
	metrics   *metrics.Registry
	log       zerolog.Logger

	mu        sync.Mutex
	buffer    map[string]models.Snapshot
	counters  Counters
	state     string
	lastError string
	startedAt time.Time
}

func newBase(v venues.Venue, snapshots *store.SnapshotRepo, status *store.StatusRepo, reg *metrics.Registry, log zerolog.Logger) *base {
	return &base{
		venue:     v,
		snapshots: snapshots,
		status:    status,
		metrics:   reg,
		log:       log.With().Str("venue", string(v)).Logger(),
		buffer:    make(map[string]models.Snapshot),
		state:     models.StatusStopped,
	}
}

// nextGridTick returns the next absolute :00/:15/:30/:45 boundary after now.
func nextGridTick(now time.Time) time.Time {
	sec := now.Unix()
	next := (sec/15 + 1) * 15
	return time.Unix(next, 0)
}

// update stores the latest payload for a symbol in the buffer.
func (b *base) update(s models.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s.Venue = string(b.venue)
	b.buffer[s.Symbol] = s
	b.counters.LastSuccessAt = time.Now()
}

// updateAll replaces buffer entries from one polled listing.
func (b *base) updateAll(rows []models.Snapshot) {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range rows {
		s.Venue = string(b.venue)
		b.buffer[s.Symbol] = s
	}
	b.counters.LastSuccessAt = now
}

// flush persists the buffer as one snapshot batch and clears it. All rows of
// a flush share one recorded-at timestamp; open_interest_usd is always
// derived from mark price and open interest.
func (b *base) flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return nil
	}
	rows := make([]models.Snapshot, 0, len(b.buffer))
	recordedAt := time.Now().UnixMilli()
	for _, s := range b.buffer {
		s.RecordedAt = recordedAt
		s.OpenInterestUSD = s.MarkPrice * s.OpenInterest
		rows = append(rows, s)
	}
	b.buffer = make(map[string]models.Snapshot)
	b.mu.Unlock()

	start := time.Now()
	if err := b.snapshots.InsertBatch(ctx, rows); err != nil {
		return err
	}

	b.metrics.FlushDuration.WithLabelValues(string(b.venue)).Observe(time.Since(start).Seconds())
	b.metrics.SnapshotsPersisted.WithLabelValues(string(b.venue)).Add(float64(len(rows)))

	b.mu.Lock()
	b.counters.Snapshots += int64(len(rows))
	b.mu.Unlock()

	b.log.Debug().Int("rows", len(rows)).Msg("Flushed snapshot buffer")
	return nil
}

// setState transitions the collector status and mirrors it to tracker_status.
func (b *base) setState(ctx context.Context, state, errMsg string) {
	b.mu.Lock()
	b.state = state
	if errMsg != "" {
		b.lastError = errMsg
	}
	reconnects := b.counters.ReconnectCount
	lastMsg := b.counters.LastSuccessAt
	b.mu.Unlock()

	if lastMsg.IsZero() {
		lastMsg = time.Now()
	}

	if err := b.status.Upsert(ctx, models.TrackerStatus{
		Venue:          string(b.venue),
		Status:         state,
		LastMessageAt:  lastMsg,
		LastError:      errMsg,
		ReconnectCount: reconnects,
	}); err != nil {
		b.log.Warn().Err(err).Msg("Failed to write tracker status")
	}
}

// recordError notes a transient failure without stopping the collector.
func (b *base) recordError(ctx context.Context, err error) {
	b.metrics.CollectorErrors.WithLabelValues(string(b.venue)).Inc()
	b.log.Warn().Err(err).Msg("Collector error")
	b.setState(ctx, models.StatusError, err.Error())
}

// statusReporter periodically refreshes the tracker_status row while the
// collector runs.
func (b *base) statusReporter(ctx context.Context) {
	ticker := time.NewTicker(statusReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			state := b.state
			lastErr := b.lastError
			b.mu.Unlock()
			if state == models.StatusError {
				b.setState(ctx, state, lastErr)
			} else {
				b.setState(ctx, state, "")
			}
		}
	}
}

// Status returns the current status tag.
func (b *base) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Debug returns a point-in-time view of the collector internals.
func (b *base) Debug() DebugInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return DebugInfo{
		Venue:      string(b.venue),
		Status:     b.state,
		BufferSize: len(b.buffer),
		Counters:   b.counters,
		LastError:  b.lastError,
		StartedAt:  b.startedAt,
	}
}

// LastMessageAt returns when the collector last received venue data.
func (b *base) LastMessageAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters.LastSuccessAt
}

func (b *base) Venue() venues.Venue { return b.venue }
