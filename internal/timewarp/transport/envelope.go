// Package transport provides the TCP point-to-point Network I/O pair
// (server ingress, client egress) specified in spec.md §6, grounded on
// original_source/src/network.rs's run_server/run_client shape: a
// listener that reads one message per connection into a fixed buffer, and
// a dialer that opens one connection per outbound message. The JSON
// payload is wrapped in an Envelope carrying a trace id and a dependency
// vector snapshot, neither of which the Rollback Manager or Priority
// Message Queue ever see.
package transport

import (
	"github.com/google/uuid"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
)

// Envelope is the wire-level record exchanged between processes. Message
// is the only field the core Rollback Manager, Priority Message Queue, and
// Gateway contracts operate on; TraceID and DependencyVector exist purely
// for observability and fossil-collection policy input.
type Envelope struct {
	TraceID          string                               `json:"trace_id"`
	DependencyVector map[model.ComponentId]model.Timestamp `json:"dependency_vector,omitempty"`
	Message          model.Message                         `json:"message"`
}

// NewEnvelope wraps msg with a freshly generated trace id and the supplied
// dependency vector snapshot (nil is valid: a federation that opted out of
// dependency tracking sends no snapshot).
func NewEnvelope(msg model.Message, dv map[model.ComponentId]model.Timestamp) Envelope {
	return Envelope{
		TraceID:          uuid.NewString(),
		DependencyVector: dv,
		Message:          msg,
	}
}
