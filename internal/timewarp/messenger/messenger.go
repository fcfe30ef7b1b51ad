// Package messenger implements the Messenger: the dispatch layer that
// routes an addressed model.Message either to a locally hosted
// component's Priority Message Queue or, for components hosted on a
// remote process, to a NetworkSender for transport egress. The dispatch
// table shape is grounded on the teacher's internal/realtime.DefaultEventBus
// subscriber map, narrowed from a fan-out broadcast to a single-destination
// route lookup.
package messenger

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/pqueue"
)

// LocalQueue is the subset of *pqueue.Queue the Messenger depends on, kept
// as an interface so tests can substitute a recording fake.
type LocalQueue interface {
	Push(m model.Message)
}

// NetworkSender hands an addressed message to the transport layer for
// delivery to a component hosted on a remote process. Implementations must
// not block the caller indefinitely; the TCP implementation in package
// transport bounds its dial with a timeout.
type NetworkSender interface {
	Send(m model.Message) error
}

// Messenger is the single point through which every component in a
// federation — local or remote — sends a message. It is safe for
// concurrent use by multiple Execution Loops.
type Messenger struct {
	mu      sync.RWMutex
	local   map[model.ComponentId]LocalQueue
	network NetworkSender
	logger  *slog.Logger
}

// New builds a Messenger. network may be nil for a single-process
// federation that never needs to leave the host.
func New(network NetworkSender, logger *slog.Logger) *Messenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Messenger{
		local:   make(map[model.ComponentId]LocalQueue),
		network: network,
		logger:  logger.With("subsystem", "messenger"),
	}
}

// RegisterLocal makes id resolvable to a locally hosted queue. Call once
// per component during federation bootstrap, before any Send.
func (m *Messenger) RegisterLocal(id model.ComponentId, q LocalQueue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.local[id] = q
	m.logger.Debug("registered local component", "component", id.String())
}

// DeregisterLocal removes a previously registered local component, e.g. on
// graceful shutdown of that component's Execution Loop.
func (m *Messenger) DeregisterLocal(id model.ComponentId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.local, id)
}

// Send delivers msg to msg.To: a local Push if the destination is hosted in
// this process, otherwise a hand-off to the configured NetworkSender. It
// returns an error only when the destination is neither a known local
// component nor reachable over the network.
func (m *Messenger) Send(msg model.Message) error {
	m.mu.RLock()
	q, isLocal := m.local[msg.To]
	m.mu.RUnlock()

	if isLocal {
		q.Push(msg)
		return nil
	}

	if m.network == nil {
		return fmt.Errorf("messenger: %s is not local and no network sender is configured", msg.To)
	}
	if err := m.network.Send(msg); err != nil {
		return fmt.Errorf("messenger: network send to %s: %w", msg.To, err)
	}
	return nil
}

// SendLocal delivers msg directly to a local queue, bypassing address
// resolution. Used by transport.Server to hand a remote-origin message to
// its locally hosted destination; it never falls back to the network.
func (m *Messenger) SendLocal(id model.ComponentId, msg model.Message) error {
	m.mu.RLock()
	q, ok := m.local[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("messenger: %s has no registered local queue", id)
	}
	q.Push(msg)
	return nil
}

// SendAll delivers every message in msgs via Send, collecting and joining
// any failures rather than stopping at the first, so every message is
// attempted and every failure is reported.
func (m *Messenger) SendAll(msgs []model.Message) error {
	var errs []error
	for _, msg := range msgs {
		if err := m.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	joined := errs[0]
	for _, e := range errs[1:] {
		joined = fmt.Errorf("%w; %w", joined, e)
	}
	return joined
}

var _ LocalQueue = (*pqueue.Queue)(nil)
