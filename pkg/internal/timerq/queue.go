package timerq

import (
	"container/heap"
	"sync"
	"time"
)

// Item is one armed timer
type Item struct {
	Key      interface{} // Timer owner, must be comparable
	Gen      uint32      // Generation handed back on expiry
	Deadline time.Time   // When the timer fires
	Index    int         // Index in the heap
}

// Queue holds at most one deadline per key, earliest first. Scheduling a
// key again replaces its previous deadline.
type Queue struct {
	items itemHeap
	byKey map[interface{}]*Item
	mu    sync.Mutex
}

// New creates an empty timer queue
func New() *Queue {
	q := &Queue{
		items: make(itemHeap, 0),
		byKey: make(map[interface{}]*Item),
	}
	heap.Init(&q.items)
	return q
}

// Schedule arms the timer of key
func (q *Queue) Schedule(key interface{}, gen uint32, deadline time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item, ok := q.byKey[key]; ok {
		item.Gen = gen
		item.Deadline = deadline
		heap.Fix(&q.items, item.Index)
		return
	}

	item := &Item{Key: key, Gen: gen, Deadline: deadline}
	heap.Push(&q.items, item)
	q.byKey[key] = item
}

// Cancel disarms the timer of key. It reports whether one was armed.
func (q *Queue) Cancel(key interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&q.items, item.Index)
	delete(q.byKey, key)
	return true
}

// Next returns the earliest deadline
func (q *Queue) Next() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return time.Time{}, false
	}
	return q.items[0].Deadline, true
}

// Expired removes and returns every timer whose deadline is not after now,
// earliest first
func (q *Queue) Expired(now time.Time) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Item
	for q.items.Len() > 0 && !now.Before(q.items[0].Deadline) {
		item := heap.Pop(&q.items).(*Item)
		delete(q.byKey, item.Key)
		out = append(out, *item)
	}
	return out
}

// Len returns the number of armed timers
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Clear disarms all timers
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make(itemHeap, 0)
	q.byKey = make(map[interface{}]*Item)
	heap.Init(&q.items)
}

// itemHeap implements heap.Interface
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	return h[i].Deadline.Before(h[j].Deadline)
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].Index = i
	h[j].Index = j
}

func (h *itemHeap) Push(x interface{}) {
	item := x.(*Item)
	item.Index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	*h = old[0 : n-1]
	return item
}
