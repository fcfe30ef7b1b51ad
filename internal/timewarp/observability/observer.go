package observability

import (
	"fmt"
	"time"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
)

// ComponentObserver adapts a single component's rollback.Manager and
// pqueue.Queue lifecycle signals to Prometheus series and the live
// EventBus feed. It satisfies rollback.Observer and pqueue.Observer
// structurally, so neither package needs to import observability.
type ComponentObserver struct {
	component string
	metrics   *EngineMetrics
	bus       *EventBus
}

// NewComponentObserver builds an observer reporting as component.
func NewComponentObserver(component string, metrics *EngineMetrics, bus *EventBus) *ComponentObserver {
	return &ComponentObserver{component: component, metrics: metrics, bus: bus}
}

// CheckpointTaken implements rollback.Observer.
func (o *ComponentObserver) CheckpointTaken() {
	if o.metrics != nil {
		o.metrics.CheckpointsTotal.WithLabelValues(o.component).Inc()
	}
	if o.bus != nil {
		o.bus.Publish(Event{Type: "checkpoint", Component: o.component, Timestamp: time.Now()})
	}
}

// Rollback implements rollback.Observer.
func (o *ComponentObserver) Rollback(correctiveMessages, antiMessages int) {
	if o.metrics != nil {
		o.metrics.RollbacksTotal.WithLabelValues(o.component).Inc()
		o.metrics.AntiMessagesSentTotal.WithLabelValues(o.component).Add(float64(antiMessages))
	}
	if o.bus != nil {
		o.bus.Publish(Event{
			Type:      "rollback",
			Component: o.component,
			Timestamp: time.Now(),
			Detail:    fmt.Sprintf("corrective=%d anti=%d", correctiveMessages, antiMessages),
		})
	}
}

// LVTAdvanced implements rollback.Observer.
func (o *ComponentObserver) LVTAdvanced(lvt model.Timestamp) {
	if o.metrics != nil {
		o.metrics.LVT.WithLabelValues(o.component).Set(float64(lvt))
	}
}

// Annihilated implements pqueue.Observer.
func (o *ComponentObserver) Annihilated() {
	if o.metrics != nil {
		o.metrics.AnnihilationsTotal.WithLabelValues(o.component).Inc()
	}
	if o.bus != nil {
		o.bus.Publish(Event{Type: "annihilation", Component: o.component, Timestamp: time.Now()})
	}
}

// DepthChanged implements pqueue.Observer.
func (o *ComponentObserver) DepthChanged(n int) {
	if o.metrics != nil {
		o.metrics.QueueDepth.WithLabelValues(o.component).Set(float64(n))
	}
}
