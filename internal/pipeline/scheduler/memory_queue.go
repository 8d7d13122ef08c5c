package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// ----- Heap -----

type queueItem struct {
	claimID  string
	priority float64
	seq      uint64 // insertion order, breaks priority ties FIFO
	index    int
}

type itemHeap []*queueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*queueItem)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// ----- MemoryQueue -----

// DeadLetterEntry is a claim parked for human review of the transport path.
type DeadLetterEntry struct {
	ClaimID  string
	Reason   string
	ParkedAt time.Time
}

// MemoryQueue is a process-local priority queue. It backs single-node
// deployments and tests; multi-node setups use the Redis-backed queue.
type MemoryQueue struct {
	mu      sync.Mutex
	heap    itemHeap
	byClaim map[string]*queueItem
	seq     uint64
	dead    []DeadLetterEntry
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{byClaim: make(map[string]*queueItem)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, priority float64, claimID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byClaim[claimID]; ok {
		existing.priority = priority
		heap.Fix(&q.heap, existing.index)
		return nil
	}

	q.seq++
	it := &queueItem{claimID: claimID, priority: priority, seq: q.seq}
	heap.Push(&q.heap, it)
	q.byClaim[claimID] = it
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context, _ string) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return "", false, nil
	}
	it := heap.Pop(&q.heap).(*queueItem)
	delete(q.byClaim, it.claimID)
	return it.claimID, true, nil
}

func (q *MemoryQueue) Remove(_ context.Context, claimID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byClaim[claimID]
	if !ok {
		return false, nil
	}
	heap.Remove(&q.heap, it.index)
	delete(q.byClaim, claimID)
	return true, nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, claimID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.dead = append(q.dead, DeadLetterEntry{ClaimID: claimID, Reason: reason, ParkedAt: time.Now().UTC()})
	return nil
}

func (q *MemoryQueue) Depth(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len(), nil
}

// DeadLetters returns a copy of the parked entries.
func (q *MemoryQueue) DeadLetters() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetterEntry, len(q.dead))
	copy(out, q.dead)
	return out
}
