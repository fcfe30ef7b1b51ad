// Package pqueue implements the Priority Message Queue: a bounded-wait,
// multi-producer/single-consumer queue that yields messages in ascending
// ExecTS order while annihilating message/anti-message pairs on insertion.
package pqueue

import (
	"container/heap"
	"log/slog"
	"sync"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
)

// Observer receives notifications of a Queue's lifecycle events, so a
// federation can report annihilation/depth activity to Prometheus metrics
// and a live event feed without the Queue itself depending on either. nil
// is valid everywhere an Observer is accepted: an unobserved Queue behaves
// exactly as before.
type Observer interface {
	Annihilated()
	DepthChanged(n int)
}

// Queue is the per-component Priority Message Queue. A single mutex
// protects the ordered container; a condition variable wakes pop() on every
// empty-to-non-empty transition, per spec.md §5.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    priorityHeap

	// index maps an Identity to its position claim for O(1) annihilation
	// lookups, per spec.md §9 note 4's hash-index optimization. It stores
	// whichever of the positive/anti pair is currently queued, keyed by
	// Identity with the IsAnti bit stripped.
	index map[model.Identity]*heapItem

	logger *slog.Logger
	obs    Observer
}

type heapItem struct {
	msg   model.Message
	seq   uint64 // insertion sequence, used only to keep heap.Fix stable
	index int
}

type priorityHeap []*heapItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].msg.ExecTS != h[j].msg.ExecTS {
		return h[i].msg.ExecTS < h[j].msg.ExecTS
	}
	if h[i].msg.SentTS != h[j].msg.SentTS {
		return h[i].msg.SentTS < h[j].msg.SentTS
	}
	return h[i].seq < h[j].seq
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *priorityHeap) Push(x any) {
	item := x.(*heapItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// New returns an empty Queue.
func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		index:  make(map[model.Identity]*heapItem),
		logger: logger.With("subsystem", "pqueue"),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// SetObserver attaches obs to receive future lifecycle events. Passing nil
// detaches any previously set observer.
func (q *Queue) SetObserver(obs Observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.obs = obs
}

var seqCounter uint64
var seqMu sync.Mutex

func nextSeq() uint64 {
	seqMu.Lock()
	defer seqMu.Unlock()
	seqCounter++
	return seqCounter
}

// Push inserts m, annihilating it against a previously queued inverse
// message if one is present. Non-blocking for producers.
func (q *Queue) Push(m model.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := m.Identity()
	if existing, ok := q.index[id]; ok && existing.msg.IsAnti != m.IsAnti {
		// The pair annihilates before either executes.
		heap.Remove(&q.items, existing.index)
		delete(q.index, id)
		q.logger.Debug("annihilated message pair", "msg_id", m.ID, "exec_ts", m.ExecTS)
		if q.obs != nil {
			q.obs.Annihilated()
			q.obs.DepthChanged(len(q.items))
		}
		return
	}

	item := &heapItem{msg: m, seq: nextSeq()}
	heap.Push(&q.items, item)
	q.index[id] = item

	if len(q.items) == 1 {
		q.notEmpty.Signal()
	}
	if q.obs != nil {
		q.obs.DepthChanged(len(q.items))
	}
}

// Pop blocks while the queue is empty, then removes and returns the message
// with the smallest ExecTS (ties broken by SentTS, then insertion order).
func (q *Queue) Pop() model.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		q.notEmpty.Wait()
	}

	item := heap.Pop(&q.items).(*heapItem)
	delete(q.index, item.msg.Identity())
	if q.obs != nil {
		q.obs.DepthChanged(len(q.items))
	}
	return item.msg
}

// Size returns the current queue length.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
