package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/dvector"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
)

// AddressTable maps a remote ComponentId to its host:port, per spec.md §6's
// "Mapping from remote ComponentId to host:port" configuration surface.
type AddressTable map[model.ComponentId]string

// Client is the outbound side of the TCP transport: it implements
// messenger.NetworkSender by dialing a fresh connection per outbound
// message (mirroring original_source/src/network.rs's run_client, which
// dials once per item drained off its channel) and writing one JSON
// Envelope. A per-destination rate.Limiter throttles redial attempts
// against an address that is currently refusing connections, so a
// partitioned peer cannot turn every outbound send into a tight dial loop.
type Client struct {
	addresses AddressTable
	dv        *dvector.Vector
	logger    *slog.Logger
	dialTO    time.Duration

	mu       sync.Mutex
	limiters map[model.ComponentId]*rate.Limiter
}

// NewClient builds a Client. dv may be nil if the federation does not use
// dependency-vector piggybacking.
func NewClient(addresses AddressTable, dv *dvector.Vector, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		addresses: addresses,
		dv:        dv,
		logger:    logger.With("subsystem", "transport.client"),
		dialTO:    5 * time.Second,
		limiters:  make(map[model.ComponentId]*rate.Limiter),
	}
}

func (c *Client) limiterFor(id model.ComponentId) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Every(200*time.Millisecond), 1)
		c.limiters[id] = l
	}
	return l
}

// Send implements messenger.NetworkSender.
func (c *Client) Send(msg model.Message) error {
	addr, ok := c.addresses[msg.To]
	if !ok {
		return fmt.Errorf("transport: no address configured for %s", msg.To)
	}

	if !c.limiterFor(msg.To).Allow() {
		return fmt.Errorf("transport: redial to %s (%s) throttled", msg.To, addr)
	}

	var snapshot map[model.ComponentId]model.Timestamp
	if c.dv != nil {
		snapshot = c.dv.Snapshot()
	}
	env := NewEnvelope(msg, snapshot)

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: encoding envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.dialTO)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: dial %s (%s): %w", msg.To, addr, err)
	}
	defer conn.Close()

	// A successful dial clears the throttle left by earlier attempts.
	c.mu.Lock()
	delete(c.limiters, msg.To)
	c.mu.Unlock()

	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("transport: write to %s (%s): %w", msg.To, addr, err)
	}

	c.logger.Debug("sent message", "trace_id", env.TraceID, "to", msg.To, "exec_ts", msg.ExecTS)
	return nil
}
