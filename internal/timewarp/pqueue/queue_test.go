package pqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
)

func msg(id uint64, execTS, sentTS model.Timestamp) model.Message {
	return model.Message{ID: id, From: 1, To: 2, SentTS: sentTS, ExecTS: execTS}
}

func TestQueue_PopOrdersByExecTS(t *testing.T) {
	q := New(nil)
	q.Push(msg(3, 30, 0))
	q.Push(msg(1, 10, 0))
	q.Push(msg(2, 20, 0))

	require.Equal(t, model.Timestamp(10), q.Pop().ExecTS)
	require.Equal(t, model.Timestamp(20), q.Pop().ExecTS)
	require.Equal(t, model.Timestamp(30), q.Pop().ExecTS)
}

func TestQueue_TiesBrokenBySentTSThenInsertionOrder(t *testing.T) {
	q := New(nil)
	q.Push(msg(1, 10, 5))
	q.Push(msg(2, 10, 1))
	q.Push(msg(3, 10, 1))

	first := q.Pop()
	second := q.Pop()
	third := q.Pop()

	assert.Equal(t, uint64(2), first.ID)
	assert.Equal(t, uint64(3), second.ID)
	assert.Equal(t, uint64(1), third.ID)
}

func TestQueue_AnnihilatesMessageAndAntiPair(t *testing.T) {
	q := New(nil)
	positive := msg(1, 10, 0)
	q.Push(positive)
	q.Push(positive.Anti())

	assert.Equal(t, 0, q.Size())
}

func TestQueue_AnnihilationIsOrderIndependent(t *testing.T) {
	q := New(nil)
	positive := msg(1, 10, 0)
	q.Push(positive.Anti())
	q.Push(positive)

	assert.Equal(t, 0, q.Size())
}

func TestQueue_DoesNotAnnihilateSameSignMessages(t *testing.T) {
	q := New(nil)
	positive := msg(1, 10, 0)
	q.Push(positive)
	q.Push(positive)

	assert.Equal(t, 2, q.Size())
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New(nil)
	done := make(chan model.Message, 1)

	go func() {
		done <- q.Pop()
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("Pop returned before any message was pushed")
	default:
	}

	q.Push(msg(1, 5, 0))

	select {
	case m := <-done:
		assert.Equal(t, uint64(1), m.ID)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

type fakeObserver struct {
	mu           sync.Mutex
	annihilated  int
	depthChanges []int
}

func (f *fakeObserver) Annihilated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.annihilated++
}

func (f *fakeObserver) DepthChanged(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depthChanges = append(f.depthChanges, n)
}

func (f *fakeObserver) lastDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.depthChanges) == 0 {
		return -1
	}
	return f.depthChanges[len(f.depthChanges)-1]
}

func (f *fakeObserver) annihilatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.annihilated
}

func TestQueue_ObserverReportsDepthOnPushAndPop(t *testing.T) {
	q := New(nil)
	obs := &fakeObserver{}
	q.SetObserver(obs)

	q.Push(msg(1, 10, 0))
	assert.Equal(t, 1, obs.lastDepth())

	q.Push(msg(2, 20, 0))
	assert.Equal(t, 2, obs.lastDepth())

	q.Pop()
	assert.Equal(t, 1, obs.lastDepth())
}

func TestQueue_ObserverReportsAnnihilation(t *testing.T) {
	q := New(nil)
	obs := &fakeObserver{}
	q.SetObserver(obs)

	positive := msg(1, 10, 0)
	q.Push(positive)
	q.Push(positive.Anti())

	assert.Equal(t, 1, obs.annihilatedCount())
}

func TestQueue_ConcurrentProducersSingleConsumer(t *testing.T) {
	q := New(nil)
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Push(msg(uint64(i), model.Timestamp(i), 0))
		}(i)
	}
	wg.Wait()

	require.Equal(t, n, q.Size())

	var lastExecTS model.Timestamp
	for i := 0; i < n; i++ {
		m := q.Pop()
		assert.GreaterOrEqual(t, m.ExecTS, lastExecTS)
		lastExecTS = m.ExecTS
	}
}
