// Package auction implements the Auction Participant: Dutch-auction
// discovery, bid-timing strategies, bid submission, and outcome
// reconciliation against the relayer.
package auction

import (
	"container/heap"
	"sync"
	"time"
)

// scheduledItem is one deferred bid submission, ordered by DueAt.
type scheduledItem struct {
	orderID string
	dueAt   time.Time
	fn      func()
	index   int
}

type itemHeap []*scheduledItem

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].dueAt.Before(h[j].dueAt) }
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *itemHeap) Push(x any) {
	item := x.(*scheduledItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Scheduler is an explicit min-heap of deferred bid submissions keyed
// by due-time, giving O(log n) schedule/cancel/pop-due operations
// instead of a timer goroutine per pending order.
type Scheduler struct {
	mu    sync.Mutex
	heap  itemHeap
	byOrd map[string]*scheduledItem
}

// NewScheduler constructs an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{byOrd: make(map[string]*scheduledItem)}
}

// Schedule enqueues fn to run (via Due) at dueAt, replacing any
// existing schedule for orderID.
func (s *Scheduler) Schedule(orderID string, dueAt time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byOrd[orderID]; ok {
		heap.Remove(&s.heap, existing.index)
		delete(s.byOrd, orderID)
	}
	item := &scheduledItem{orderID: orderID, dueAt: dueAt, fn: fn}
	heap.Push(&s.heap, item)
	s.byOrd[orderID] = item
}

// Cancel removes orderID's scheduled submission, if any. Returns true
// if a schedule was actually cancelled.
func (s *Scheduler) Cancel(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.byOrd[orderID]
	if !ok {
		return false
	}
	heap.Remove(&s.heap, item.index)
	delete(s.byOrd, orderID)
	return true
}

// Due pops every item whose dueAt has passed relative to now and runs
// their callbacks. Callers invoke this from a ticker loop.
func (s *Scheduler) Due(now time.Time) {
	s.mu.Lock()
	var ready []*scheduledItem
	for s.heap.Len() > 0 && !s.heap[0].dueAt.After(now) {
		item := heap.Pop(&s.heap).(*scheduledItem)
		delete(s.byOrd, item.orderID)
		ready = append(ready, item)
	}
	s.mu.Unlock()

	for _, item := range ready {
		item.fn()
	}
}

// Len reports the number of outstanding scheduled items.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}
