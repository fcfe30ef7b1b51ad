// Package rollback implements the per-component Rollback Manager: the store
// of checkpoints, sent messages, and received messages that lets a Time
// Warp component reconstruct any state it previously exhibited and compute
// the corrective anti-messages a straggler forces.
//
// A Manager is owned exclusively by its Execution Loop. It is not
// thread-safe by design — ownership discipline guarantees single-writer
// access, exactly as spec.md §5 requires; no mutex guards it.
package rollback

import (
	"log/slog"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
)

// State is anything a component can snapshot and later restore verbatim.
// Clone must return a value independent of the receiver so a later mutation
// of the live state cannot corrupt a stored checkpoint.
type State interface {
	Clone() State
}

// Observer receives notifications of a Manager's lifecycle events, so a
// federation can report rollback/checkpoint activity to Prometheus metrics
// and a live event feed without the Manager itself depending on either.
// nil is valid everywhere an Observer is accepted: an unobserved Manager
// behaves exactly as before.
type Observer interface {
	CheckpointTaken()
	Rollback(correctiveMessages, antiMessages int)
	LVTAdvanced(lvt model.Timestamp)
}

// Manager is the Rollback Manager for a single component.
type Manager struct {
	id     model.ComponentId
	state  State
	lvt    model.Timestamp
	logger *slog.Logger
	obs    Observer

	// checkpoints is sorted strictly ascending by Timestamp and never
	// empty after construction.
	checkpoints []model.Checkpoint

	// sentMessages is sorted non-decreasing by SentTS; every element has
	// From == id and IsAnti == false.
	sentMessages []model.Message

	// receivedMessages is sorted non-decreasing by ExecTS; every element
	// has To == id and IsAnti == false.
	receivedMessages []model.Message
}

// New creates a Manager for id, installing the genesis checkpoint
// {timestamp: 0, state: initialState} and setting lvt = 0.
func New(id model.ComponentId, initialState State, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		id:     id,
		state:  initialState,
		lvt:    0,
		logger: logger.With("component", id.String(), "subsystem", "rollback"),
	}
	m.checkpoints = []model.Checkpoint{{Timestamp: 0, State: initialState}}
	return m
}

// SetObserver attaches obs to receive future lifecycle events. Passing nil
// detaches any previously set observer.
func (m *Manager) SetObserver(obs Observer) { m.obs = obs }

// ID returns the owning component's id.
func (m *Manager) ID() model.ComponentId { return m.id }

// State returns the manager's current application state.
func (m *Manager) State() State { return m.state }

// LVT returns the Local Virtual Time: the largest ExecTS already integrated.
func (m *Manager) LVT() model.Timestamp { return m.lvt }

// CheckpointCount reports how many checkpoints are currently retained, for
// observability.
func (m *Manager) CheckpointCount() int { return len(m.checkpoints) }

// SentCount reports how many sent messages are currently retained.
func (m *Manager) SentCount() int { return len(m.sentMessages) }

// ReceivedCount reports how many received messages are currently retained.
func (m *Manager) ReceivedCount() int { return len(m.receivedMessages) }

// SaveMessage records m as sent (if m.From == id) or received (if
// m.To == id). It rejects anti-messages and messages not addressed to or
// from this component, and enforces that the relevant list stays sorted.
func (m *Manager) SaveMessage(msg model.Message) error {
	if msg.IsAnti {
		return newFailure(KindInvalidMessage, "cannot save an anti-message (id=%d)", msg.ID)
	}
	if msg.From != m.id && msg.To != m.id {
		return newFailure(KindInvalidMessage, "message %d not addressed to or from %s", msg.ID, m.id)
	}

	if msg.From == m.id {
		if n := len(m.sentMessages); n > 0 && m.sentMessages[n-1].SentTS > msg.SentTS {
			return newFailure(KindTimeViolation, "sent_ts %d precedes last sent_ts %d", msg.SentTS, m.sentMessages[n-1].SentTS)
		}
		m.sentMessages = append(m.sentMessages, msg)
		m.logger.Debug("saved sent message", "msg_id", msg.ID, "sent_ts", msg.SentTS, "to", msg.To)
		return nil
	}

	if n := len(m.receivedMessages); n > 0 && m.receivedMessages[n-1].ExecTS > msg.ExecTS {
		return newFailure(KindTimeViolation, "exec_ts %d precedes last exec_ts %d", msg.ExecTS, m.receivedMessages[n-1].ExecTS)
	}
	m.receivedMessages = append(m.receivedMessages, msg)
	m.logger.Debug("saved received message", "msg_id", msg.ID, "exec_ts", msg.ExecTS, "from", msg.From)
	return nil
}

// TakeCheckpoint appends {timestamp: lvt, state: clone(state)} to the
// checkpoint list; if the last checkpoint already has timestamp lvt, it is
// replaced instead, keeping the list strictly ascending. It does not mutate
// lvt or either message list; lvt advances only via Update. Call according
// to an externally supplied checkpoint policy (see engine.CheckpointPolicy).
func (m *Manager) TakeCheckpoint() {
	cp := model.Checkpoint{
		Timestamp: m.lvt,
		State:     m.state.Clone(),
	}
	if n := len(m.checkpoints); n > 0 && m.checkpoints[n-1].Timestamp == m.lvt {
		m.checkpoints[n-1] = cp
	} else {
		m.checkpoints = append(m.checkpoints, cp)
	}
	m.logger.Debug("took checkpoint", "lvt", m.lvt, "checkpoints", len(m.checkpoints))
	if m.obs != nil {
		m.obs.CheckpointTaken()
	}
}

// Update replaces state and lvt after the component has integrated a
// message. It fails if newLVT would move time backward.
func (m *Manager) Update(newState State, newLVT model.Timestamp) error {
	if newLVT < m.lvt {
		return newFailure(KindTimeViolation, "update lvt %d precedes current lvt %d", newLVT, m.lvt)
	}
	m.state = newState
	m.lvt = newLVT
	if m.obs != nil {
		m.obs.LVTAdvanced(newLVT)
	}
	return nil
}

// Rollback rewinds the manager to the last checkpoint at or before
// targetTS, returning the messages the caller must deliver via the
// Messenger as a consequence: re-delivered receives (unchanged, destined
// for this component's own queue) and anti-messages for every retracted
// send (destined for the original recipients).
func (m *Manager) Rollback(targetTS model.Timestamp) ([]model.Message, error) {
	if targetTS > m.lvt {
		return nil, newFailure(KindTimeViolation, "rollback target %d is ahead of lvt %d", targetTS, m.lvt)
	}
	if len(m.checkpoints) == 0 || m.checkpoints[0].Timestamp > targetTS {
		return nil, newFailure(KindInsufficientCheckpoints, "no checkpoint at or before %d", targetTS)
	}

	// Drop trailing checkpoints strictly after targetTS.
	i := len(m.checkpoints) - 1
	for i > 0 && m.checkpoints[i].Timestamp > targetTS {
		i--
	}
	restored := m.checkpoints[i]
	m.checkpoints = m.checkpoints[:i+1]
	m.state = restored.State.(State)
	m.lvt = restored.Timestamp

	var corrective []model.Message

	// Re-deliver every received message at or after targetTS; the
	// rollback discards whatever processing they previously triggered.
	j := len(m.receivedMessages)
	for j > 0 && m.receivedMessages[j-1].ExecTS >= targetTS {
		j--
	}
	retracted := m.receivedMessages[j:]
	m.receivedMessages = m.receivedMessages[:j]
	corrective = append(corrective, retracted...)

	// Cancel every sent message at or after targetTS with its anti-twin.
	k := len(m.sentMessages)
	for k > 0 && m.sentMessages[k-1].SentTS >= targetTS {
		k--
	}
	retractedSent := m.sentMessages[k:]
	m.sentMessages = m.sentMessages[:k]
	for _, sent := range retractedSent {
		corrective = append(corrective, sent.Anti())
	}

	m.logger.Info("rolled back", "target_ts", targetTS, "new_lvt", m.lvt, "corrective_messages", len(corrective))
	if m.obs != nil {
		antiCount := 0
		for _, c := range corrective {
			if c.IsAnti {
				antiCount++
			}
		}
		m.obs.Rollback(len(corrective), antiCount)
	}
	return corrective, nil
}

// Free drops from the head of checkpoints, receivedMessages, and
// sentMessages every element whose key is <= ts. It never fails; callers
// must ensure at least one checkpoint survives (e.g. by taking a fresh
// checkpoint before freeing at a newly computed lower bound).
func (m *Manager) Free(ts model.Timestamp) {
	i := 0
	for i < len(m.checkpoints) && m.checkpoints[i].Timestamp <= ts {
		i++
	}
	m.checkpoints = m.checkpoints[i:]

	j := 0
	for j < len(m.receivedMessages) && m.receivedMessages[j].ExecTS <= ts {
		j++
	}
	m.receivedMessages = m.receivedMessages[j:]

	k := 0
	for k < len(m.sentMessages) && m.sentMessages[k].SentTS <= ts {
		k++
	}
	m.sentMessages = m.sentMessages[k:]

	m.logger.Debug("freed fossils", "ts", ts, "checkpoints", len(m.checkpoints))
}
