package searcher

import (
	"math"

	"github.com/veloxdb/veloxdb/model"
)

// Item is a scored candidate.
type Item struct {
	ID       model.ID
	Distance float32
}

// worse reports whether a ranks after b: larger distance, or equal
// distance and larger id. NaN ranks after every number.
func worse(a, b Item) bool {
	aNaN, bNaN := math.IsNaN(float64(a.Distance)), math.IsNaN(float64(b.Distance))
	switch {
	case aNaN != bNaN:
		return aNaN
	case !aNaN && a.Distance != b.Distance:
		return a.Distance > b.Distance
	}
	return a.ID > b.ID
}

// Queue is a bounded max-heap that keeps the best candidates seen so far.
// The worst kept candidate sits at the top.
// Value-based storage; no allocations once capacity is reached.
type Queue struct {
	items []Item
	limit int
}

// NewQueue creates a queue that keeps at most limit candidates.
func NewQueue(limit int) *Queue {
	return &Queue{items: make([]Item, 0, limit), limit: limit}
}

// Reset empties the queue and sets a new limit.
func (q *Queue) Reset(limit int) {
	q.items = q.items[:0]
	q.limit = limit
}

// Len returns the number of kept candidates.
func (q *Queue) Len() int {
	return len(q.items)
}

// Top returns the worst kept candidate.
func (q *Queue) Top() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Push offers a candidate. When the queue is full the candidate replaces the
// top only if it ranks before it.
func (q *Queue) Push(it Item) {
	if len(q.items) < q.limit {
		q.items = append(q.items, it)
		q.siftUp(len(q.items) - 1)
		return
	}
	if q.limit == 0 || !worse(q.items[0], it) {
		return
	}
	q.items[0] = it
	q.siftDown(0)
}

// Pop removes and returns the worst kept candidate.
func (q *Queue) Pop() (Item, bool) {
	n := len(q.items)
	if n == 0 {
		return Item{}, false
	}
	top := q.items[0]
	q.items[0] = q.items[n-1]
	q.items = q.items[:n-1]
	if len(q.items) > 0 {
		q.siftDown(0)
	}
	return top, true
}

// Drain empties the queue and returns its candidates best first.
func (q *Queue) Drain() []Item {
	out := make([]Item, len(q.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i], _ = q.Pop()
	}
	return out
}

func (q *Queue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !worse(q.items[i], q.items[parent]) {
			break
		}
		q.items[i], q.items[parent] = q.items[parent], q.items[i]
		i = parent
	}
}

func (q *Queue) siftDown(i int) {
	n := len(q.items)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		child := left
		if right := left + 1; right < n && worse(q.items[right], q.items[left]) {
			child = right
		}
		if !worse(q.items[child], q.items[i]) {
			return
		}
		q.items[i], q.items[child] = q.items[child], q.items[i]
		i = child
	}
}
