// Package engine implements the Execution Loop: the per-component worker
// that drains the Priority Message Queue, detects Local Causality
// Constraint violations, drives rollbacks through the Rollback Manager,
// invokes the Gateway, and routes produced messages through the Messenger.
// The Start/Stop/graceful-shutdown shape is grounded on the teacher's
// AsyncWebhookProcessor worker-pool lifecycle, narrowed from N workers
// draining a shared channel to exactly one goroutine draining one
// component's queue, since the Rollback Manager requires single-writer
// ownership (spec.md §5).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/dvector"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/gateway"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/pqueue"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/rollback"
)

// Sender is the subset of *messenger.Messenger the loop depends on.
type Sender interface {
	Send(m model.Message) error
}

// FatalHandler is invoked exactly once if the loop terminates due to a
// Rollback Manager or Messenger failure. Per spec.md §7, such failures
// indicate engine or queue corruption, not a user error, and are fatal to
// the component; the handler lets the owning federation decide how to
// react (log and exit, restart the component, tear down the process).
type FatalHandler func(id model.ComponentId, err error)

// Loop is the Execution Loop for a single component.
type Loop struct {
	id       model.ComponentId
	queue    *pqueue.Queue
	gw       gateway.Gateway
	sender   Sender
	policy   CheckpointPolicy
	logger   *slog.Logger
	onFatal  FatalHandler
	vector   *dvector.Vector
	observer rollback.Observer

	manager *rollback.Manager

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// Config bundles the Loop's construction-time dependencies.
type Config struct {
	ID      model.ComponentId
	Queue   *pqueue.Queue
	Gateway gateway.Gateway
	Sender  Sender
	Policy  CheckpointPolicy
	Logger  *slog.Logger
	OnFatal FatalHandler

	// Vector, if non-nil, receives this component's own advancing
	// timestamp after every state update, per spec.md §5's "the loop
	// advances its own dependency vector entry" requirement.
	Vector *dvector.Vector

	// Observer, if non-nil, is attached to the loop's Rollback Manager
	// (and, by a federation wiring the same concrete value into the
	// component's pqueue.Queue, its queue too) to report rollback,
	// checkpoint, and annihilation activity.
	Observer rollback.Observer
}

// New builds a Loop. It does not start it; call Run (blocking) or Start
// (spawns Run in a goroutine).
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.Policy
	if policy == nil {
		policy = EveryN(16)
	}
	return &Loop{
		id:       cfg.ID,
		queue:    cfg.Queue,
		gw:       cfg.Gateway,
		sender:   cfg.Sender,
		policy:   policy,
		logger:   logger.With("component", cfg.ID.String(), "subsystem", "engine"),
		onFatal:  cfg.OnFatal,
		vector:   cfg.Vector,
		observer: cfg.Observer,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Manager exposes the loop's Rollback Manager for observability (LVT,
// checkpoint/queue depth gauges); it must never be mutated by a caller
// other than the loop itself.
func (l *Loop) Manager() *rollback.Manager { return l.manager }

// Start runs the loop in a new goroutine. Call Stop to request a graceful
// exit at the next queue-pop boundary.
func (l *Loop) Start(ctx context.Context) {
	go l.Run(ctx)
}

// Stop requests the loop exit after its current iteration. Because
// queue.Pop blocks indefinitely on an empty queue (spec.md §5), a stopped
// loop with no pending traffic will not observe the signal until another
// message arrives. Context cancellation is checked at the same boundary,
// so it does not interrupt a blocked Pop either.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.stopCh) })
}

// Done reports when Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.doneCh }

// Run executes the Execution Loop until Stop is called, ctx is cancelled,
// or a fatal error occurs. It performs gateway.Init() synchronously before
// entering the pop loop.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.doneCh)

	state, initMsgs, err := l.gw.Init()
	if err != nil {
		l.fatal(fmt.Errorf("gateway init: %w", err))
		return
	}
	rbState, ok := state.(rollback.State)
	if !ok {
		l.fatal(fmt.Errorf("gateway init: state does not implement rollback.State"))
		return
	}
	l.manager = rollback.New(l.id, rbState, l.logger)
	if l.observer != nil {
		l.manager.SetObserver(l.observer)
	}

	for _, m := range initMsgs {
		if err := l.manager.SaveMessage(m); err != nil {
			l.fatal(fmt.Errorf("saving init message: %w", err))
			return
		}
		if err := l.sender.Send(m); err != nil {
			l.fatal(fmt.Errorf("sending init message: %w", err))
			return
		}
	}

	current := rbState

	for {
		select {
		case <-l.stopCh:
			l.logger.Info("execution loop stopped")
			return
		case <-ctx.Done():
			l.logger.Info("execution loop cancelled", "cause", ctx.Err())
			return
		default:
		}

		msg := l.queue.Pop()

		// An anti-message arriving exactly at the current LVT means its
		// positive twin was the most recently integrated message; the LCC
		// check must trigger at equality too, or the twin's effects would
		// never be retracted.
		needsRollback := msg.ExecTS < l.manager.LVT() || (msg.IsAnti && msg.ExecTS == l.manager.LVT())
		if needsRollback {
			retracts, err := l.manager.Rollback(msg.ExecTS)
			if err != nil {
				l.fatal(fmt.Errorf("rollback to %d: %w", msg.ExecTS, err))
				return
			}
			current = l.manager.State().(rollback.State)
			for _, r := range retracts {
				if err := l.route(r); err != nil {
					l.fatal(fmt.Errorf("routing corrective message: %w", err))
					return
				}
			}
		}

		if checkpointTrigger(msg.ExecTS, l.manager) && l.policy.ShouldCheckpoint(current, l.manager) {
			l.manager.TakeCheckpoint()
		}

		if msg.IsAnti {
			// An anti-message that survived queue annihilation means its
			// positive twin already executed and was itself rolled back
			// away; nothing further to integrate, but LVT still advances
			// to its exec_ts so later LCC checks remain correct.
			if err := l.manager.Update(current, msg.ExecTS); err != nil {
				l.fatal(fmt.Errorf("advancing past anti-message: %w", err))
				return
			}
			l.advanceVector(msg.ExecTS)
			continue
		}

		if err := l.manager.SaveMessage(msg); err != nil {
			l.fatal(fmt.Errorf("saving received message: %w", err))
			return
		}

		newState, outs, err := l.gw.OnMessage(current, msg)
		if err != nil {
			l.fatal(fmt.Errorf("gateway on_message: %w", err))
			return
		}

		if err := l.manager.Update(newState, msg.ExecTS); err != nil {
			l.fatal(fmt.Errorf("updating state: %w", err))
			return
		}
		l.advanceVector(msg.ExecTS)
		current = newState

		for _, o := range outs {
			if err := l.manager.SaveMessage(o); err != nil {
				l.fatal(fmt.Errorf("saving sent message: %w", err))
				return
			}
			if err := l.route(o); err != nil {
				l.fatal(fmt.Errorf("routing outbound message: %w", err))
				return
			}
		}
	}
}

func (l *Loop) route(m model.Message) error {
	return l.sender.Send(m)
}

// advanceVector sets this component's own dependency-vector entry, per
// spec.md §5. A rejection is expected (and non-fatal) after a rollback: a
// rollback can drop LVT below a self-timestamp already recorded from a
// prior, now-retracted integration, and the vector must not move backward
// to stay a safe fossil-collection lower bound.
func (l *Loop) advanceVector(ts model.Timestamp) {
	if l.vector == nil {
		return
	}
	if err := l.vector.SetSelfTimestamp(ts); err != nil {
		l.logger.Debug("dependency vector self-advance rejected", "ts", ts, "error", err)
	}
}

func (l *Loop) fatal(err error) {
	l.logger.Error("execution loop terminated", "error", err)
	if l.onFatal != nil {
		l.onFatal(l.id, err)
	}
}
