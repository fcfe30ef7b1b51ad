// Package gateway defines the contract between the Execution Loop and
// user-supplied simulation components, and the Translator that adapts a
// payload/route-speaking Component into a fully addressed Gateway.
package gateway

import (
	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/rollback"
)

// Gateway is the contract the Execution Loop drives directly. It speaks
// entirely in fully addressed model.Message values.
type Gateway interface {
	// Init constructs the initial application state and any bootstrap
	// outbound messages, already addressed with SentTS = 0.
	Init() (rollback.State, []model.Message, error)

	// OnMessage is a pure transition: given the current state and a
	// received message whose ExecTS is the new LVT, produce the next
	// state and any outbound messages (with SentTS = the triggering
	// message's ExecTS).
	OnMessage(state rollback.State, msg model.Message) (rollback.State, []model.Message, error)
}

// MsgCore is the payload/route/exec_ts view of a message a Component deals
// in, before the Translator attaches addressing.
type MsgCore struct {
	Payload string
	Route   string
	ExecTS  model.Timestamp
}

// Component is the user-level contract: it never sees ComponentId
// addressing, only payloads and routes. The Translator adapts a Component
// into a Gateway.
type Component interface {
	// Init returns the initial state and any bootstrap messages to route.
	Init() (rollback.State, []MsgCore, error)

	// OnMessage is invoked with the current state and logical time
	// together with the received message core; it returns the next state
	// and any outbound message cores to route.
	OnMessage(state rollback.State, lvt model.Timestamp, msg MsgCore) (rollback.State, []MsgCore, error)
}
