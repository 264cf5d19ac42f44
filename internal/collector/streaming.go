package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/perpscan/perpscan/internal/metrics"
	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/store"
	"github.com/perpscan/perpscan/internal/venues"
)

const (
	maxReconnectAttempts = 10
	reconnectBaseDelay   = time.Second
	reconnectMaxDelay    = 60 * time.Second
	readDeadline         = 60 * time.Second
	pingInterval         = 30 * time.Second
)

// HandleFunc parses one streaming message and emits zero or more buffer
// updates. Implementations leave Venue, RecordedAt and OpenInterestUSD unset.
type HandleFunc func(data []byte, emit func(models.Snapshot)) error

// StreamConfig describes one venue's streaming subscription.
type StreamConfig struct {
	URL string
	// Subscriptions are JSON payloads written right after connecting.
	Subscriptions []interface{}
	Handle        HandleFunc
	// PreventiveReconnect closes and redials the stream on this interval to
	// pre-empt server-side idle timeouts. Zero disables it.
	PreventiveReconnect time.Duration
}

// StreamingCollector keeps a persistent websocket subscription open, updates
// the in-memory buffer on each message and persists the buffer on the shared
// 15-second grid. Disconnects trigger exponential-backoff reconnects capped
// at maxReconnectAttempts; exhaustion parks the collector in the failed
// state until start is requested again.
type StreamingCollector struct {
	*base
	cfg StreamConfig
}

// NewStreamingCollector builds a streaming collector for one venue.
func NewStreamingCollector(v venues.Venue, cfg StreamConfig, snapshots *store.SnapshotRepo, status *store.StatusRepo, reg *metrics.Registry, log zerolog.Logger) *StreamingCollector {
	return &StreamingCollector{
		base: newBase(v, snapshots, status, reg, log),
		cfg:  cfg,
	}
}

// Run maintains the subscription until ctx is cancelled or reconnects are
// exhausted. Invoked by the manager in a dedicated goroutine.
func (c *StreamingCollector) Run(ctx context.Context) {
	c.mu.Lock()
	c.startedAt = time.Now()
	c.mu.Unlock()
	c.setState(ctx, models.StatusRunning, "")
	c.log.Info().Str("url", c.cfg.URL).Msg("Streaming collector started")

	go c.statusReporter(ctx)
	go c.flushLoop(ctx)

	attempts := 0
	for {
		if ctx.Err() != nil {
			c.shutdown()
			return
		}

		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			c.shutdown()
			return
		}
		if err == errPreventive {
			// Planned redial, not a failure.
			attempts = 0
			continue
		}

		attempts++
		c.mu.Lock()
		c.counters.ReconnectCount++
		c.mu.Unlock()
		c.metrics.Reconnects.WithLabelValues(string(c.venue)).Inc()

		if attempts >= maxReconnectAttempts {
			c.log.Error().Err(err).Int("attempts", attempts).Msg("Reconnect attempts exhausted")
			c.setState(ctx, models.StatusFailed, fmt.Sprintf("reconnect attempts exhausted: %v", err))
			return
		}

		delay := reconnectBaseDelay << uint(attempts-1)
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
		c.log.Warn().Err(err).Int("attempt", attempts).Dur("backoff", delay).Msg("Stream disconnected, reconnecting")
		c.setState(ctx, models.StatusError, err.Error())

		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-time.After(delay):
		}
	}
}

// errPreventive signals a planned preventive redial.
var errPreventive = fmt.Errorf("preventive reconnect")

func (c *StreamingCollector) connectAndRead(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 30 * time.Second

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()

	for _, sub := range c.cfg.Subscriptions {
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("failed to send subscription: %w", err)
		}
	}

	c.setState(ctx, models.StatusConnected, "")
	c.log.Info().Msg("Stream subscribed")

	done := make(chan struct{})
	defer close(done)

	// Ping keeps intermediaries from idling out the connection.
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	var preventive <-chan time.Time
	if c.cfg.PreventiveReconnect > 0 {
		timer := time.NewTimer(c.cfg.PreventiveReconnect)
		defer timer.Stop()
		preventive = timer.C
	}

	type readResult struct {
		data []byte
		err  error
	}
	reads := make(chan readResult)
	go func() {
		for {
			conn.SetReadDeadline(time.Now().Add(readDeadline))
			_, data, err := conn.ReadMessage()
			select {
			case reads <- readResult{data, err}:
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-preventive:
			return errPreventive
		case r := <-reads:
			if r.err != nil {
				return fmt.Errorf("websocket read failed: %w", r.err)
			}
			if err := c.cfg.Handle(r.data, c.update); err != nil {
				// Parse errors are transient; keep the stream open.
				c.log.Warn().Err(err).Msg("Failed to handle stream message")
				c.metrics.CollectorErrors.WithLabelValues(string(c.venue)).Inc()
			}
		}
	}
}

// flushLoop persists the buffer on the shared grid for the lifetime of Run.
func (c *StreamingCollector) flushLoop(ctx context.Context) {
	for {
		wait := time.Until(nextGridTick(time.Now()))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			c.mu.Lock()
			c.counters.LastPollAt = time.Now()
			c.mu.Unlock()
			if err := c.flush(ctx); err != nil {
				c.recordError(ctx, err)
			}
		}
	}
}

func (c *StreamingCollector) shutdown() {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.flush(flushCtx); err != nil {
		c.log.Warn().Err(err).Msg("Final flush failed")
	}
	c.setState(context.Background(), models.StatusStopped, "")
	c.log.Info().Msg("Streaming collector stopped")
}
