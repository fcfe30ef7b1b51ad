// Package echocomponent provides a minimal gateway.Component the
// timewarpd binary ships as a compiled-in smoke-test/demo component, since
// spec.md's core defines no plugin-loading mechanism for arbitrary
// user-supplied components at the binary level. It self-schedules a chain
// of messages on the "self" route, which is enough to exercise the
// Rollback Manager's checkpoint/update path and the Priority Message
// Queue's ordering under a real Execution Loop without any external
// dependencies.
package echocomponent

import (
	"fmt"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/gateway"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/rollback"
)

// State is the Echo component's counter state.
type State struct {
	Count int
}

// Clone implements rollback.State.
func (s State) Clone() rollback.State {
	return State{Count: s.Count}
}

// Echo increments a counter on every received message and re-sends itself
// a message one logical tick later, stopping after Limit ticks.
type Echo struct {
	Limit int
}

var _ gateway.Component = Echo{}

// Init implements gateway.Component.
func (e Echo) Init() (rollback.State, []gateway.MsgCore, error) {
	state := State{Count: 0}
	msgs := []gateway.MsgCore{
		{Route: "self", ExecTS: 1, Payload: "tick"},
	}
	return state, msgs, nil
}

// OnMessage implements gateway.Component.
func (e Echo) OnMessage(state rollback.State, lvt model.Timestamp, msg gateway.MsgCore) (rollback.State, []gateway.MsgCore, error) {
	s, ok := state.(State)
	if !ok {
		return nil, nil, fmt.Errorf("echocomponent: unexpected state type %T", state)
	}
	s.Count++

	if e.Limit > 0 && s.Count >= e.Limit {
		return s, nil, nil
	}

	return s, []gateway.MsgCore{
		{Route: "self", ExecTS: lvt + 1, Payload: "tick"},
	}, nil
}
