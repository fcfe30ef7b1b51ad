// Package model defines the wire-level data types shared by every Time Warp
// subsystem: timestamps, component identifiers, messages, and checkpoints.
package model

import "fmt"

// Timestamp is an unsigned, monotonic logical clock value. Zero is the
// virtual time at which every component starts.
type Timestamp uint64

// ComponentId uniquely names a component within the federation. It is
// totally ordered and hashable, so it can key maps and sort slices.
type ComponentId uint32

// String renders a ComponentId for logging.
func (c ComponentId) String() string {
	return fmt.Sprintf("component-%d", uint32(c))
}

// Message is a single Time Warp event, either a positive effect or the
// anti-message that cancels one. Anti-messages carry no payload.
type Message struct {
	// ID is producer-assigned and unique per (From, SentTS) pair.
	ID uint64 `json:"id"`

	From ComponentId `json:"from"`
	To   ComponentId `json:"to"`

	// SentTS is the sender's LVT at the moment the message was produced.
	SentTS Timestamp `json:"sent_ts"`

	// ExecTS is the destination's logical time at which this message must
	// be integrated.
	ExecTS Timestamp `json:"exec_ts"`

	Payload string `json:"payload,omitempty"`

	// Route is an optional routing key resolved by the Translator; it is
	// empty for messages that already name a destination ComponentId
	// directly.
	Route string `json:"route,omitempty"`

	IsAnti bool `json:"is_anti"`
}

// Identity is the (From, To, ID, SentTS, ExecTS) tuple that determines
// whether two messages are the positive/anti pair of one another.
type Identity struct {
	From   ComponentId
	To     ComponentId
	ID     uint64
	SentTS Timestamp
	ExecTS Timestamp
}

// Identity extracts the comparison key used for annihilation and equality.
func (m Message) Identity() Identity {
	return Identity{From: m.From, To: m.To, ID: m.ID, SentTS: m.SentTS, ExecTS: m.ExecTS}
}

// IsInverseOf reports whether m and other are the positive/anti pair of the
// same logical event: identical identity, opposite IsAnti.
func (m Message) IsInverseOf(other Message) bool {
	return m.Identity() == other.Identity() && m.IsAnti != other.IsAnti
}

// Anti returns the anti-message twin of m. It is only valid to call on a
// positive message; callers that already hold an anti-message have no twin
// to compute and should not call this.
func (m Message) Anti() Message {
	anti := m
	anti.IsAnti = true
	anti.Payload = ""
	return anti
}

// Checkpoint is a saved (timestamp, state) pair sufficient to resume
// execution from that logical time. State is opaque to the Rollback
// Manager; the owning component treats it as a reproducible snapshot.
type Checkpoint struct {
	Timestamp Timestamp
	State     any
}
