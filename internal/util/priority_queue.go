package util

import (
	"container/heap"
	"errors"
	"sync"
)

var (
	ErrPriorityQueueClosed = errors.New("priority queue closed")
	ErrPriorityQueueEmpty  = errors.New("priority queue empty")
)

// PriorityItem pairs a value with its scheduling priority.
type PriorityItem[T any] struct {
	Value    T
	Priority int // higher number means higher priority
	Index    int // maintained by the heap interface
}

// PriorityQueue is a mutex-guarded max-heap. Consumers poll with TryPop;
// blocking is the caller's concern so the queue itself stays lock-simple.
type PriorityQueue[T any] struct {
	items  []*PriorityItem[T]
	mu     sync.Mutex
	closed bool
}

// NewPriorityQueue creates an empty priority queue.
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	pq := &PriorityQueue[T]{
		items: make([]*PriorityItem[T], 0),
	}
	heap.Init(pq)
	return pq
}

// Len implements heap.Interface.
func (pq *PriorityQueue[T]) Len() int { return len(pq.items) }

// Less implements heap.Interface (higher priority first).
func (pq *PriorityQueue[T]) Less(i, j int) bool {
	return pq.items[i].Priority > pq.items[j].Priority
}

// Swap implements heap.Interface.
func (pq *PriorityQueue[T]) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.items[i].Index = i
	pq.items[j].Index = j
}

// Push implements heap.Interface.
func (pq *PriorityQueue[T]) Push(x interface{}) {
	n := len(pq.items)
	item := x.(*PriorityItem[T])
	item.Index = n
	pq.items = append(pq.items, item)
}

// Pop implements heap.Interface.
func (pq *PriorityQueue[T]) Pop() interface{} {
	old := pq.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	pq.items = old[0 : n-1]
	return item
}

// PushItem adds a value to the queue.
func (pq *PriorityQueue[T]) PushItem(value T, priority int) error {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.closed {
		return ErrPriorityQueueClosed
	}

	heap.Push(pq, &PriorityItem[T]{
		Value:    value,
		Priority: priority,
	})
	return nil
}

// TryPop removes and returns the highest priority value without blocking.
func (pq *PriorityQueue[T]) TryPop() (T, error) {
	var zero T

	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.closed {
		return zero, ErrPriorityQueueClosed
	}
	if len(pq.items) == 0 {
		return zero, ErrPriorityQueueEmpty
	}

	item := heap.Pop(pq).(*PriorityItem[T])
	return item.Value, nil
}

// Size reports how many items are queued.
func (pq *PriorityQueue[T]) Size() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return len(pq.items)
}

// Close rejects all further pushes and pops.
func (pq *PriorityQueue[T]) Close() {
	pq.mu.Lock()
	pq.closed = true
	pq.mu.Unlock()
}
