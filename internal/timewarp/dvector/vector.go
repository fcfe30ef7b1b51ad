// Package dvector implements the per-component Dependency Vector, a
// supplemental Time Warp primitive present in the original dcb.rs
// implementation this module is distilled from but dropped by the
// distilled spec. It tracks, for every known component, the highest
// timestamp this component has observed — a building block an external
// GVT/fossil-collection policy can use to decide when a `rollback.Free`
// call is safe, without this package implementing any cross-federation
// agreement protocol itself.
package dvector

import (
	"fmt"
	"sync"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
)

// Vector is a per-component dependency vector: self id plus a timestamp per
// known peer (including self).
type Vector struct {
	mu   sync.RWMutex
	self model.ComponentId
	ts   map[model.ComponentId]model.Timestamp
}

// New builds a zeroed Vector for self, seeding an entry for self and every
// peer.
func New(self model.ComponentId, peers []model.ComponentId) *Vector {
	v := &Vector{
		self: self,
		ts:   make(map[model.ComponentId]model.Timestamp, len(peers)+1),
	}
	v.ts[self] = 0
	for _, p := range peers {
		v.ts[p] = 0
	}
	return v
}

// SetSelfTimestamp monotonically advances this component's own entry. It
// errors if ts would move the self entry backward.
func (v *Vector) SetSelfTimestamp(ts model.Timestamp) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if ts < v.ts[v.self] {
		return fmt.Errorf("dvector: self timestamp %d precedes current %d", ts, v.ts[v.self])
	}
	v.ts[v.self] = ts
	return nil
}

// Merge pointwise-maxes remote into this vector, rejecting a remote view
// that claims a higher self-timestamp than this component has itself
// reported — such a claim would indicate the remote observed an event of
// this component's that this component has not yet produced, a causality
// violation.
func (v *Vector) Merge(remote map[model.ComponentId]model.Timestamp) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if remoteSelf, ok := remote[v.self]; ok && remoteSelf > v.ts[v.self] {
		return fmt.Errorf("dvector: remote claims self timestamp %d ahead of local %d", remoteSelf, v.ts[v.self])
	}

	for id, remoteTS := range remote {
		if id == v.self {
			continue
		}
		if remoteTS > v.ts[id] {
			v.ts[id] = remoteTS
		}
	}
	return nil
}

// Snapshot returns a read-only copy of the current vector, suitable for
// piggybacking on an outbound transport envelope.
func (v *Vector) Snapshot() map[model.ComponentId]model.Timestamp {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[model.ComponentId]model.Timestamp, len(v.ts))
	for id, ts := range v.ts {
		out[id] = ts
	}
	return out
}

// Min returns the smallest timestamp across all tracked components — a
// conservative lower bound an external fossil-collection policy may pass
// to rollback.Manager.Free.
func (v *Vector) Min() model.Timestamp {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var min model.Timestamp
	first := true
	for _, ts := range v.ts {
		if first || ts < min {
			min = ts
			first = false
		}
	}
	return min
}
