package federation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/dvector"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/engine"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/gateway"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/messenger"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/observability"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/pqueue"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/transport"
)

var _ observability.StatusProvider = (*Process)(nil)

// Registry supplies the gateway.Component implementation and route table
// for each ComponentConfig listed in Config.Components. Config itself
// carries no executable code (it is a YAML/env surface), so the embedding
// program builds a Registry in Go and passes it to Build.
type Registry map[model.ComponentId]ComponentBinding

// ComponentBinding pairs a Component with the RouteTable its Translator
// resolves outbound routes against.
type ComponentBinding struct {
	Component gateway.Component
	Routes    gateway.RouteTable
}

// Process is a running federation member: one transport.Server, one
// transport.Client, and one engine.Loop per locally hosted component.
type Process struct {
	cfg       *Config
	messenger *messenger.Messenger
	server    *transport.Server
	loops     map[model.ComponentId]*engine.Loop
	queues    map[model.ComponentId]*pqueue.Queue
	vectors   map[model.ComponentId]*dvector.Vector
	logger    *slog.Logger
}

// Build wires a Process from cfg and reg without starting anything. metrics
// and bus, if non-nil, are wired into a per-component observability.
// ComponentObserver attached to each component's Rollback Manager and
// Priority Message Queue; pass nil for either to run without that
// observability surface.
func Build(cfg *Config, reg Registry, metrics *observability.EngineMetrics, bus *observability.EventBus, logger *slog.Logger) (*Process, error) {
	if logger == nil {
		logger = slog.Default()
	}

	addrTable, err := cfg.AddressTable()
	if err != nil {
		return nil, err
	}

	peers := make([]model.ComponentId, 0, len(addrTable))
	for id := range addrTable {
		peers = append(peers, id)
	}

	p := &Process{
		cfg:     cfg,
		loops:   make(map[model.ComponentId]*engine.Loop),
		queues:  make(map[model.ComponentId]*pqueue.Queue),
		vectors: make(map[model.ComponentId]*dvector.Vector),
		logger:  logger.With("subsystem", "federation"),
	}

	var sharedDV *dvector.Vector
	var client *transport.Client
	if cfg.UseDependencyVector && len(cfg.Components) > 0 {
		sharedDV = dvector.New(cfg.Components[0].ID, peers)
	}
	client = transport.NewClient(transport.AddressTable(addrTable), sharedDV, logger)

	p.messenger = messenger.New(client, logger)

	for _, compCfg := range cfg.Components {
		binding, ok := reg[compCfg.ID]
		if !ok {
			return nil, fmt.Errorf("federation: no registry binding for component %s", compCfg.ID)
		}

		q := pqueue.New(logger)
		p.messenger.RegisterLocal(compCfg.ID, q)
		p.queues[compCfg.ID] = q

		translator, err := gateway.NewTranslator(compCfg.ID, binding.Component, binding.Routes, 256, logger)
		if err != nil {
			return nil, fmt.Errorf("federation: building translator for %s: %w", compCfg.ID, err)
		}

		policy := resolvePolicy(compCfg)

		var observer *observability.ComponentObserver
		if metrics != nil || bus != nil {
			observer = observability.NewComponentObserver(compCfg.ID.String(), metrics, bus)
			q.SetObserver(observer)
		}

		loopCfg := engine.Config{
			ID:      compCfg.ID,
			Queue:   q,
			Gateway: translator,
			Sender:  p.messenger,
			Policy:  policy,
			Logger:  logger,
			Vector:  sharedDV,
			OnFatal: func(id model.ComponentId, err error) {
				p.logger.Error("component terminated fatally", "component", id.String(), "error", err)
			},
		}
		// observer is typed as a concrete *ComponentObserver above; assign
		// it to the rollback.Observer field only when non-nil, since a nil
		// concrete pointer boxed into a non-nil interface would make every
		// "obs != nil" check downstream true and panic on first use.
		if observer != nil {
			loopCfg.Observer = observer
		}
		loop := engine.New(loopCfg)
		p.loops[compCfg.ID] = loop

		if sharedDV != nil {
			p.vectors[compCfg.ID] = sharedDV
		}
	}

	p.server = transport.NewServer(cfg.BindAddr, p.messenger, sharedDV, logger)

	return p, nil
}

func resolvePolicy(cfg ComponentConfig) engine.CheckpointPolicy {
	base := engine.CheckpointPolicy(engine.EveryN(16))
	if cfg.CheckpointEveryN > 0 {
		base = engine.EveryN(cfg.CheckpointEveryN)
	}
	if cfg.CheckpointRatePS > 0 {
		return engine.NewRateLimited(base, rateLimitFromPerSecond(cfg.CheckpointRatePS), 1)
	}
	return base
}

// Run starts the transport server and every component's Execution Loop,
// blocking until ctx is cancelled.
func (p *Process) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.server.ListenAndServe(ctx); err != nil {
			p.logger.Error("transport server exited", "error", err)
		}
	}()

	for id, loop := range p.loops {
		p.logger.Info("starting component", "component", id.String())
		loop.Start(ctx)
	}

	<-ctx.Done()

	for _, loop := range p.loops {
		loop.Stop()
	}
	wg.Wait()

	return nil
}

// Loop returns the running Execution Loop for id, or nil if id is not
// hosted by this process.
func (p *Process) Loop(id model.ComponentId) *engine.Loop { return p.loops[id] }

// ComponentStatus implements observability.StatusProvider.
func (p *Process) ComponentStatus(id model.ComponentId) (observability.ComponentStatus, bool) {
	loop, ok := p.loops[id]
	if !ok {
		return observability.ComponentStatus{}, false
	}
	q := p.queues[id]
	mgr := loop.Manager()
	if mgr == nil {
		// Init() has not completed yet; the loop is still bootstrapping.
		return observability.ComponentStatus{ComponentId: id, QueueDepth: q.Size()}, true
	}
	return observability.ComponentStatus{
		ComponentId:     id,
		LVT:             mgr.LVT(),
		QueueDepth:      q.Size(),
		CheckpointCount: mgr.CheckpointCount(),
	}, true
}

func rateLimitFromPerSecond(perSecond float64) rate.Limit {
	return rate.Limit(perSecond)
}
