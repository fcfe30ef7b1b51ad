package observability

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a single observable occurrence in the engine: a rollback, a
// checkpoint, a queue annihilation. Subscribers (dashboards, debuggers)
// receive these over a websocket feed.
type Event struct {
	Type      string    `json:"type"`
	Component string    `json:"component"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// Subscriber is anything that can receive a stream of Events and report
// when it has disconnected. Narrowed from the teacher's EventSubscriber
// (which also exposes ID/Context for HTTP SSE bookkeeping) down to the one
// websocket-backed implementation this module ships.
type Subscriber interface {
	Send(e Event) error
	Close() error
}

// EventBus fans engine events out to every connected Subscriber. The
// Subscribe/Unsubscribe/Publish/broadcastWorker shape is carried over from
// the teacher's internal/realtime.DefaultEventBus; the difference is the
// payload (engine Events instead of alert-lifecycle Events) and the
// transport (raw websocket connections instead of SSE).
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	eventChan   chan Event
	sequence    int64
	logger      *slog.Logger
	metrics     *EngineMetrics

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewEventBus builds an EventBus with a 1000-event buffer, matching the
// teacher's DefaultEventBus buffering choice.
func NewEventBus(logger *slog.Logger, metrics *EngineMetrics) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		subscribers: make(map[Subscriber]struct{}),
		eventChan:   make(chan Event, 1000),
		logger:      logger.With("component", "event_bus"),
		metrics:     metrics,
		stopChan:    make(chan struct{}),
	}
}

// Subscribe registers sub to receive future events.
func (b *EventBus) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[sub] = struct{}{}
	b.logger.Info("subscriber added", "total_subscribers", len(b.subscribers))
}

// Unsubscribe removes sub and closes its connection.
func (b *EventBus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		sub.Close()
		b.logger.Info("subscriber removed", "total_subscribers", len(b.subscribers))
	}
}

// Publish queues event for broadcast, assigning it the next sequence
// number. Non-blocking: a full channel drops the event and logs a warning
// rather than stalling the publishing Execution Loop.
func (b *EventBus) Publish(event Event) {
	event.Sequence = atomic.AddInt64(&b.sequence, 1)
	select {
	case b.eventChan <- event:
	default:
		b.logger.Warn("event channel full, dropping event", "event_type", event.Type, "component", event.Component)
	}
}

// Start launches the broadcast worker.
func (b *EventBus) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.broadcastWorker(ctx)
}

// Stop signals the broadcast worker to exit and waits for it.
func (b *EventBus) Stop() {
	close(b.stopChan)
	b.wg.Wait()
}

func (b *EventBus) broadcastWorker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopChan:
			return
		case event := <-b.eventChan:
			b.broadcast(event)
		}
	}
}

func (b *EventBus) broadcast(event Event) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s Subscriber) {
			defer wg.Done()
			if err := s.Send(event); err != nil {
				b.logger.Warn("failed to send event to subscriber", "error", err)
				b.Unsubscribe(s)
			}
		}(sub)
	}
	wg.Wait()
}

// WebsocketSubscriber adapts a *websocket.Conn to the Subscriber interface.
type WebsocketSubscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWebsocketSubscriber wraps conn.
func NewWebsocketSubscriber(conn *websocket.Conn) *WebsocketSubscriber {
	return &WebsocketSubscriber{conn: conn}
}

// Send writes e to the underlying connection as JSON. Writes are
// serialized since gorilla/websocket connections do not support
// concurrent writers.
func (w *WebsocketSubscriber) Send(e Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(e)
}

// Close closes the underlying connection.
func (w *WebsocketSubscriber) Close() error {
	return w.conn.Close()
}
