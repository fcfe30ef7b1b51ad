package rollback

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
)

// counterState is a minimal rollback.State used across this package's
// tests: an integer that Clone copies by value.
type counterState struct {
	n int
}

func (c counterState) Clone() State { return counterState{n: c.n} }

func recv(id uint64, from, to model.ComponentId, sentTS, execTS model.Timestamp) model.Message {
	return model.Message{ID: id, From: from, To: to, SentTS: sentTS, ExecTS: execTS}
}

func TestNew_InstallsGenesisCheckpoint(t *testing.T) {
	m := New(1, counterState{n: 0}, nil)

	assert.Equal(t, model.Timestamp(0), m.LVT())
	assert.Equal(t, 1, m.CheckpointCount())
}

func TestSaveMessage_RejectsAntiMessage(t *testing.T) {
	m := New(1, counterState{}, nil)
	anti := recv(1, 2, 1, 0, 5)
	anti.IsAnti = true

	err := m.SaveMessage(anti)

	require.Error(t, err)
	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, KindInvalidMessage, failure.Kind)
}

func TestSaveMessage_RejectsMisaddressedMessage(t *testing.T) {
	m := New(1, counterState{}, nil)
	foreign := recv(1, 2, 3, 0, 5)

	err := m.SaveMessage(foreign)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMessage))
}

func TestSaveMessage_RejectsOutOfOrderReceived(t *testing.T) {
	m := New(1, counterState{}, nil)
	require.NoError(t, m.SaveMessage(recv(1, 2, 1, 0, 10)))

	err := m.SaveMessage(recv(2, 2, 1, 0, 5))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeViolation))
}

func TestUpdate_RejectsBackwardLVT(t *testing.T) {
	m := New(1, counterState{}, nil)
	require.NoError(t, m.Update(counterState{n: 1}, 10))

	err := m.Update(counterState{n: 2}, 5)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeViolation))
}

func TestTakeCheckpoint_DoesNotAdvanceLVT(t *testing.T) {
	m := New(1, counterState{n: 0}, nil)
	require.NoError(t, m.Update(counterState{n: 1}, 10))

	m.TakeCheckpoint()

	assert.Equal(t, model.Timestamp(10), m.LVT())
	assert.Equal(t, 2, m.CheckpointCount())
}

func TestRollback_RestoresStateAndReturnsCorrectiveMessages(t *testing.T) {
	m := New(1, counterState{n: 0}, nil)

	// lvt advances to 5 with a checkpoint along the way.
	require.NoError(t, m.Update(counterState{n: 1}, 5))
	m.TakeCheckpoint()

	// lvt advances further to 10, with a received message and a sent message.
	require.NoError(t, m.SaveMessage(recv(1, 2, 1, 5, 8)))
	outbound := model.Message{ID: 99, From: 1, To: 3, SentTS: 8, ExecTS: 20}
	require.NoError(t, m.SaveMessage(outbound))
	require.NoError(t, m.Update(counterState{n: 2}, 10))

	corrective, err := m.Rollback(7)

	require.NoError(t, err)
	require.Len(t, corrective, 2)

	assert.Equal(t, model.Timestamp(5), m.LVT())
	assert.Equal(t, counterState{n: 1}, m.State())

	var sawRetractedReceive, sawAnti bool
	for _, c := range corrective {
		if c.ID == 1 && !c.IsAnti {
			sawRetractedReceive = true
		}
		if c.ID == 99 && c.IsAnti {
			sawAnti = true
		}
	}
	assert.True(t, sawRetractedReceive, "expected the retracted received message to be replayed")
	assert.True(t, sawAnti, "expected an anti-message for the retracted send")
}

func TestRollback_RejectsTargetAheadOfLVT(t *testing.T) {
	m := New(1, counterState{}, nil)
	require.NoError(t, m.Update(counterState{n: 1}, 5))

	_, err := m.Rollback(10)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeViolation))
}

func TestRollback_RejectsTargetBeforeEarliestCheckpoint(t *testing.T) {
	m := New(1, counterState{}, nil)
	require.NoError(t, m.Update(counterState{n: 1}, 5))
	m.TakeCheckpoint() // checkpoint at lvt=5
	m.Free(0)          // drop the genesis checkpoint; the earliest retained one is now at 5
	require.NoError(t, m.Update(counterState{n: 2}, 10))

	_, err := m.Rollback(1)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientCheckpoints))
}

type fakeObserver struct {
	checkpoints    int
	rollbacks      int
	lastCorrective int
	lastAnti       int
	lvtAdvances    []model.Timestamp
}

func (f *fakeObserver) CheckpointTaken() { f.checkpoints++ }

func (f *fakeObserver) Rollback(correctiveMessages, antiMessages int) {
	f.rollbacks++
	f.lastCorrective = correctiveMessages
	f.lastAnti = antiMessages
}

func (f *fakeObserver) LVTAdvanced(lvt model.Timestamp) {
	f.lvtAdvances = append(f.lvtAdvances, lvt)
}

func TestObserver_ReceivesCheckpointAndUpdateNotifications(t *testing.T) {
	m := New(1, counterState{n: 0}, nil)
	obs := &fakeObserver{}
	m.SetObserver(obs)

	require.NoError(t, m.Update(counterState{n: 1}, 5))
	m.TakeCheckpoint()

	assert.Equal(t, 1, obs.checkpoints)
	require.Len(t, obs.lvtAdvances, 1)
	assert.Equal(t, model.Timestamp(5), obs.lvtAdvances[0])
}

func TestObserver_ReceivesRollbackCountsIncludingAntiMessages(t *testing.T) {
	m := New(1, counterState{n: 0}, nil)
	obs := &fakeObserver{}
	m.SetObserver(obs)

	require.NoError(t, m.Update(counterState{n: 1}, 5))
	m.TakeCheckpoint()
	require.NoError(t, m.SaveMessage(recv(1, 2, 1, 5, 8)))
	outbound := model.Message{ID: 99, From: 1, To: 3, SentTS: 8, ExecTS: 20}
	require.NoError(t, m.SaveMessage(outbound))
	require.NoError(t, m.Update(counterState{n: 2}, 10))

	_, err := m.Rollback(7)

	require.NoError(t, err)
	assert.Equal(t, 1, obs.rollbacks)
	assert.Equal(t, 2, obs.lastCorrective)
	assert.Equal(t, 1, obs.lastAnti)
}

func TestFree_DropsFossilsAtOrBeforeTS(t *testing.T) {
	m := New(1, counterState{n: 0}, nil)
	require.NoError(t, m.Update(counterState{n: 1}, 5))
	m.TakeCheckpoint()
	require.NoError(t, m.SaveMessage(recv(1, 2, 1, 0, 3)))
	require.NoError(t, m.Update(counterState{n: 2}, 8))
	m.TakeCheckpoint()

	m.Free(5)

	assert.Equal(t, 1, m.CheckpointCount())
	assert.Equal(t, 0, m.ReceivedCount())
}
