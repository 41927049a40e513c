// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import "sync"

// WorkItemKind distinguishes the two kinds of [*WorkItem].
type WorkItemKind int

const (
	// WorkItemData carries an opaque payload for the consumer.
	WorkItemData = WorkItemKind(iota)

	// WorkItemSignal carries a typed sentinel (e.g., shutdown).
	WorkItemSignal
)

// WorkItem is the unit of cross-thread hand-off.
//
// Ownership transfers on enqueue: after a successful [*WorkQueue.Put] the
// producer must not touch the item again, and the consumer is responsible
// for releasing it via [*WorkItem.Release].
type WorkItem struct {
	// Kind says whether this is a data item or a signal sentinel.
	Kind WorkItemKind

	// Data is the opaque payload of a [WorkItemData] item.
	Data any

	// Signal is the sentinel value of a [WorkItemSignal] item.
	Signal int

	// dtor releases resources owned by Data, when set.
	dtor func(any)
}

// NewDataItem returns a data [*WorkItem] carrying the given payload.
//
// The optional dtor releases resources owned by the payload and runs when
// the item is released, either by the consumer or on queue destroy.
func NewDataItem(data any, dtor func(any)) *WorkItem {
	return &WorkItem{Kind: WorkItemData, Data: data, dtor: dtor}
}

// NewSignalItem returns a signal [*WorkItem] carrying the given sentinel.
func NewSignalItem(signal int) *WorkItem {
	return &WorkItem{Kind: WorkItemSignal, Signal: signal}
}

// Release runs the item's destructor, if any. Safe to call more than once.
func (wi *WorkItem) Release() {
	if wi.dtor != nil {
		wi.dtor(wi.Data)
		wi.dtor = nil
	}
}

// WorkQueue is a bounded multi-producer/multi-consumer FIFO.
//
// Items observed by a single consumer appear in enqueue order. With several
// consumers each item is delivered to exactly one of them, but no ordering
// across consumers is promised.
//
// The shutdown protocol is by convention: a producer enqueues a
// [WorkItemSignal] sentinel and the consumer, upon observing it, stops
// draining and exits.
type WorkQueue struct {
	// mu protects all fields below.
	mu sync.Mutex

	// notEmpty is signaled when an item is enqueued.
	notEmpty *sync.Cond

	// notFull is signaled when an item is dequeued.
	notFull *sync.Cond

	// items is a ring buffer of capacity len(items).
	items []*WorkItem

	// head is the index of the oldest item.
	head int

	// count is the number of queued items.
	count int

	// name identifies the queue in diagnostics.
	name string
}

// NewWorkQueue creates a [*WorkQueue] bounded at the given capacity.
// The name identifies the queue in diagnostics.
func NewWorkQueue(capacity int, name string) *WorkQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &WorkQueue{
		items: make([]*WorkItem, capacity),
		name:  name,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Name returns the queue's diagnostic name.
func (q *WorkQueue) Name() string {
	return q.name
}

// Put enqueues the item, blocking while the queue is full. Items are never
// dropped. Ownership of the item transfers to the queue.
func (q *WorkQueue) Put(wi *WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.count == len(q.items) {
		q.notFull.Wait()
	}
	q.items[(q.head+q.count)%len(q.items)] = wi
	q.count++
	q.notEmpty.Signal()
}

// Get dequeues the oldest item. With block set it waits for an item to
// arrive; otherwise it returns (nil, false) when the queue is empty.
func (q *WorkQueue) Get(block bool) (*WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.count == 0 {
		if !block {
			return nil, false
		}
		q.notEmpty.Wait()
	}
	wi := q.takeLocked()
	q.notFull.Signal()
	return wi, true
}

// GetBatch drains up to len(buf) items in a single critical section and
// returns how many were stored into buf. With block set it waits until at
// least one item is available.
func (q *WorkQueue) GetBatch(buf []*WorkItem, block bool) int {
	if len(buf) == 0 {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.count == 0 {
		if !block {
			return 0
		}
		q.notEmpty.Wait()
	}
	n := 0
	for n < len(buf) && q.count > 0 {
		buf[n] = q.takeLocked()
		n++
	}
	q.notFull.Broadcast()
	return n
}

// Length returns a snapshot of the number of queued items. The value is
// advisory: it may be stale by the time the caller acts on it.
func (q *WorkQueue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Destroy releases all remaining items through their destructors. The
// queue must not be used afterwards.
func (q *WorkQueue) Destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.count > 0 {
		q.takeLocked().Release()
	}
}

func (q *WorkQueue) takeLocked() *WorkItem {
	wi := q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return wi
}
