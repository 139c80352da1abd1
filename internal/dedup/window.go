// Package dedup provides a bounded, time-windowed set of recently seen
// event IDs. Replays inside the window are detected; events that aged out
// may be reprocessed, trading bounded memory for perfect exactly-once.
package dedup

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	id     string
	seenAt time.Time
}

// Window remembers event IDs up to a fixed capacity and TTL. It is safe
// for concurrent use by all pipeline workers; Seen is an atomic
// insert-if-absent.
type Window struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	byID     map[string]*list.Element
	order    *list.List // front = oldest

	// now is swappable for tests.
	now func() time.Time
}

// NewWindow creates a Window with the given capacity and entry TTL.
func NewWindow(capacity int, ttl time.Duration) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		ttl:      ttl,
		byID:     make(map[string]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// Seen records the ID and reports whether it was already present within
// the window. The first call for an ID returns false; replays inside the
// TTL return true.
func (w *Window) Seen(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.evictExpired(now)

	if _, ok := w.byID[id]; ok {
		return true
	}

	w.byID[id] = w.order.PushBack(entry{id: id, seenAt: now})
	for w.order.Len() > w.capacity {
		w.evictFront()
	}
	return false
}

// Len returns the number of remembered IDs.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictExpired(w.now())
	return w.order.Len()
}

func (w *Window) evictExpired(now time.Time) {
	if w.ttl <= 0 {
		return
	}
	for {
		front := w.order.Front()
		if front == nil {
			return
		}
		if now.Sub(front.Value.(entry).seenAt) <= w.ttl {
			return
		}
		w.evictFront()
	}
}

func (w *Window) evictFront() {
	front := w.order.Front()
	if front == nil {
		return
	}
	delete(w.byID, front.Value.(entry).id)
	w.order.Remove(front)
}
