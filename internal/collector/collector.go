package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/perpscan/perpscan/internal/models"
	"github.com/perpscan/perpscan/internal/venues"
)

// Collector is one venue worker. Run blocks until its context is cancelled or
// the collector gives up (reconnects exhausted).
type Collector interface {
	Run(ctx context.Context)
	Status() string
	Debug() DebugInfo
	LastMessageAt() time.Time
	Venue() venues.Venue
}

// Factory builds a fresh collector instance. A new instance is created on
// every start so a failed worker restarts from a clean slate.
type Factory func() Collector

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdRestart
	cmdStatus
	cmdDebug
	// cmdObserve reads lifecycle state without the implicit start. It backs
	// the health probe, which must not resurrect stopped or failed venues.
	cmdObserve
)

type command struct {
	kind  cmdKind
	reply chan commandReply
}

type commandReply struct {
	status   string
	debug    DebugInfo
	lastMsg  time.Time
	running  bool
	startErr error
}

// worker serializes management commands for one venue through a channel, so
// concurrent start/stop/status requests can never race on lifecycle state.
type worker struct {
	venue   venues.Venue
	factory Factory
	cmds    chan command
	log     zerolog.Logger

	// Owned by the command loop goroutine.
	current Collector
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager owns the collector fleet. Every venue gets one command-loop
// goroutine; all lifecycle operations go through it.
type Manager struct {
	ctx     context.Context
	workers map[venues.Venue]*worker
	log     zerolog.Logger
}

// NewManager builds a manager over the given venue factories. ctx bounds the
// lifetime of every collector the manager starts.
func NewManager(ctx context.Context, factories map[venues.Venue]Factory, log zerolog.Logger) *Manager {
	m := &Manager{
		ctx:     ctx,
		workers: make(map[venues.Venue]*worker, len(factories)),
		log:     log.With().Str("component", "collector_manager").Logger(),
	}
	for v, f := range factories {
		w := &worker{
			venue:   v,
			factory: f,
			cmds:    make(chan command),
			log:     log.With().Str("venue", string(v)).Logger(),
		}
		m.workers[v] = w
		go w.loop(ctx)
	}
	return m
}

func (w *worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.stopLocked()
			return
		case cmd := <-w.cmds:
			w.handle(ctx, cmd)
		}
	}
}

func (w *worker) handle(ctx context.Context, cmd command) {
	var reply commandReply

	switch cmd.kind {
	case cmdStop:
		w.stopLocked()
	case cmdRestart:
		w.stopLocked()
		reply.startErr = w.startLocked(ctx)
	case cmdObserve:
		// Read-only.
	default:
		// Any other operation implies the collector should be running.
		reply.startErr = w.startLocked(ctx)
	}

	switch cmd.kind {
	case cmdStatus, cmdStart, cmdRestart, cmdObserve:
		if w.current != nil {
			reply.status = w.current.Status()
			reply.lastMsg = w.current.LastMessageAt()
			reply.running = w.running()
		}
	case cmdDebug:
		if w.current != nil {
			reply.debug = w.current.Debug()
		}
	}

	cmd.reply <- reply
}

// running reports whether the Run goroutine is still alive. A collector that
// exhausted its reconnects has exited even though it was never stopped.
func (w *worker) running() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *worker) startLocked(ctx context.Context) error {
	if w.running() {
		return nil
	}
	w.stopLocked()

	c := w.factory()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.current, w.cancel, w.done = c, cancel, done

	go func() {
		defer close(done)
		c.Run(runCtx)
	}()

	w.log.Info().Msg("Collector started")
	return nil
}

func (w *worker) stopLocked() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	select {
	case <-w.done:
	case <-time.After(10 * time.Second):
		w.log.Warn().Msg("Collector did not stop within 10s")
	}
	w.cancel, w.done = nil, nil
	w.log.Info().Msg("Collector stopped")
}

func (m *Manager) send(v venues.Venue, kind cmdKind) (commandReply, error) {
	w, ok := m.workers[v]
	if !ok {
		return commandReply{}, fmt.Errorf("unknown venue: %s", v)
	}
	cmd := command{kind: kind, reply: make(chan commandReply, 1)}
	select {
	case w.cmds <- cmd:
	case <-m.ctx.Done():
		return commandReply{}, m.ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r, nil
	case <-m.ctx.Done():
		return commandReply{}, m.ctx.Err()
	}
}

// Start launches the venue's collector if it is not already running.
func (m *Manager) Start(v venues.Venue) error {
	r, err := m.send(v, cmdStart)
	if err != nil {
		return err
	}
	return r.startErr
}

// Stop cancels the venue's collector and waits for it to exit.
func (m *Manager) Stop(v venues.Venue) error {
	_, err := m.send(v, cmdStop)
	return err
}

// Restart stops and relaunches the venue's collector from a fresh instance.
func (m *Manager) Restart(v venues.Venue) error {
	r, err := m.send(v, cmdRestart)
	if err != nil {
		return err
	}
	return r.startErr
}

// VenueStatus is one row of the fleet status listing.
type VenueStatus struct {
	Venue         string    `json:"venue"`
	Status        string    `json:"status"`
	Running       bool      `json:"running"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Status reports one venue, implicitly starting it first.
func (m *Manager) Status(v venues.Venue) (VenueStatus, error) {
	r, err := m.send(v, cmdStatus)
	if err != nil {
		return VenueStatus{}, err
	}
	return VenueStatus{
		Venue:         string(v),
		Status:        r.status,
		Running:       r.running,
		LastMessageAt: r.lastMsg,
	}, nil
}

// Observe reports one venue without the implicit start, so stopped and failed
// collectors stay down until start is requested again.
func (m *Manager) Observe(v venues.Venue) (VenueStatus, error) {
	r, err := m.send(v, cmdObserve)
	if err != nil {
		return VenueStatus{}, err
	}
	status := r.status
	if status == "" {
		status = models.StatusStopped
	}
	return VenueStatus{
		Venue:         string(v),
		Status:        status,
		Running:       r.running,
		LastMessageAt: r.lastMsg,
	}, nil
}

// Debug returns internals for one venue, implicitly starting it first.
func (m *Manager) Debug(v venues.Venue) (DebugInfo, error) {
	r, err := m.send(v, cmdDebug)
	if err != nil {
		return DebugInfo{}, err
	}
	return r.debug, nil
}

// StartAll launches every registered collector.
func (m *Manager) StartAll() {
	for _, v := range m.Venues() {
		if err := m.Start(v); err != nil {
			m.log.Error().Err(err).Str("venue", string(v)).Msg("Failed to start collector")
		}
	}
}

// StopAll stops every collector; used during graceful shutdown.
func (m *Manager) StopAll() {
	for _, v := range m.Venues() {
		if err := m.Stop(v); err != nil {
			m.log.Warn().Err(err).Str("venue", string(v)).Msg("Failed to stop collector")
		}
	}
}

// StatusAll reports every venue. Like Status, it implicitly starts venues
// that are not running.
func (m *Manager) StatusAll() []VenueStatus {
	out := make([]VenueStatus, 0, len(m.workers))
	for _, v := range m.Venues() {
		s, err := m.Status(v)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ObserveAll reports every venue without starting any of them.
func (m *Manager) ObserveAll() []VenueStatus {
	out := make([]VenueStatus, 0, len(m.workers))
	for _, v := range m.Venues() {
		s, err := m.Observe(v)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Venues lists the registered venues in stable order.
func (m *Manager) Venues() []venues.Venue {
	out := make([]venues.Venue, 0, len(m.workers))
	for v := range m.workers {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
