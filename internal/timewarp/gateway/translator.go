package gateway

import (
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/rollback"
)

// Destination names the (ComponentId, route) pair a Translator resolves a
// route key to.
type Destination struct {
	ComponentId model.ComponentId
	Route       string
}

// RouteTable resolves a route key known to a Component to its addressed
// Destination. Construction-time, read-mostly.
type RouteTable map[string]Destination

// Translator is the standard Gateway implementation: it wraps a
// user-supplied Component and resolves routes via a RouteTable injected at
// construction. Route resolutions are cached in a bounded LRU (the route
// table itself is typically small and static, but federations with wide
// fan-out route keys benefit from not re-hashing the map on every
// message — the same bounded-cache-in-front-of-a-lookup-table shape the
// teacher uses for template resolution).
type Translator struct {
	localID model.ComponentId
	routes  RouteTable
	cache   *lru.Cache[string, Destination]
	comp    Component
	logger  *slog.Logger

	nextMsgID uint64
}

// NewTranslator builds a Translator for localID, wrapping comp and
// resolving MsgCore.Route against routes. cacheSize bounds the resolution
// cache; a non-positive value disables caching (falls back to a direct map
// lookup every time).
func NewTranslator(localID model.ComponentId, comp Component, routes RouteTable, cacheSize int, logger *slog.Logger) (*Translator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Translator{
		localID: localID,
		routes:  routes,
		comp:    comp,
		logger:  logger.With("component", localID.String(), "subsystem", "translator"),
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, Destination](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("translator: building route cache: %w", err)
		}
		t.cache = cache
	}
	return t, nil
}

func (t *Translator) resolve(route string) (Destination, error) {
	if t.cache != nil {
		if dest, ok := t.cache.Get(route); ok {
			return dest, nil
		}
	}
	dest, ok := t.routes[route]
	if !ok {
		return Destination{}, fmt.Errorf("translator: unresolved route %q", route)
	}
	if t.cache != nil {
		t.cache.Add(route, dest)
	}
	return dest, nil
}

func (t *Translator) translate(core MsgCore, sentTS model.Timestamp) (model.Message, error) {
	dest, err := t.resolve(core.Route)
	if err != nil {
		return model.Message{}, err
	}
	t.nextMsgID++
	return model.Message{
		ID:      t.nextMsgID,
		From:    t.localID,
		To:      dest.ComponentId,
		SentTS:  sentTS,
		ExecTS:  core.ExecTS,
		Route:   dest.Route,
		Payload: core.Payload,
	}, nil
}

// Init implements Gateway by delegating to the wrapped Component and
// addressing every bootstrap message with SentTS = 0.
func (t *Translator) Init() (rollback.State, []model.Message, error) {
	state, cores, err := t.comp.Init()
	if err != nil {
		return nil, nil, fmt.Errorf("translator: component init: %w", err)
	}
	msgs := make([]model.Message, 0, len(cores))
	for _, core := range cores {
		m, err := t.translate(core, 0)
		if err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, m)
	}
	return state, msgs, nil
}

// OnMessage implements Gateway: it unwraps the addressed message to a
// MsgCore, invokes the Component, and re-addresses every produced message
// with SentTS = the triggering message's ExecTS.
func (t *Translator) OnMessage(state rollback.State, msg model.Message) (rollback.State, []model.Message, error) {
	core := MsgCore{Payload: msg.Payload, Route: msg.Route, ExecTS: msg.ExecTS}
	newState, outCores, err := t.comp.OnMessage(state, msg.ExecTS, core)
	if err != nil {
		return nil, nil, fmt.Errorf("translator: component on_message: %w", err)
	}
	outs := make([]model.Message, 0, len(outCores))
	for _, oc := range outCores {
		m, err := t.translate(oc, msg.ExecTS)
		if err != nil {
			return nil, nil, err
		}
		outs = append(outs, m)
	}
	return newState, outs, nil
}
