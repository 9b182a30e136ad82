package window

import (
	"sync"
	"time"
)

// History is a fixed-size FIFO of release timestamps.
//
// It starts out holding size zero timestamps, which stand for releases that happened
// infinitely long ago. Every PopOldest must eventually be paired with one Push, so that
// the number of stored timestamps plus the number of outstanding pops always equals size.
//
// # Thread Safety
//
// All methods take a single mutex. The lock is held only for the O(1) ring update.
type History struct {
	mu    sync.Mutex
	ring  []time.Time // Circular buffer of timestamps
	head  int         // Position of the oldest stored timestamp
	count int         // Number of stored timestamps
}

// NewHistory creates a History primed with size zero timestamps.
//
// Panics if size is not positive.
func NewHistory(size int) *History {
	if size <= 0 {
		panic("window: history size must be positive")
	}

	return &History{
		ring:  make([]time.Time, size),
		count: size,
	}
}

// PopOldest removes and returns the oldest stored timestamp.
//
// An empty History returns the zero time. That only happens when callers pop more
// often than the pool capacity allows, and the zero time never delays anyone.
func (h *History) PopOldest() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return time.Time{}
	}

	oldest := h.ring[h.head]
	h.ring[h.head] = time.Time{}
	h.head = (h.head + 1) % len(h.ring)
	h.count--

	return oldest
}

// Push appends t as the newest timestamp. When the ring is already full the oldest
// entry is overwritten so the History never grows past its size.
func (h *History) Push(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail := (h.head + h.count) % len(h.ring)
	h.ring[tail] = t

	if h.count == len(h.ring) {
		h.head = (h.head + 1) % len(h.ring)
		return
	}
	h.count++
}

// Len returns the number of stored timestamps.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.count
}

// Size returns the fixed capacity of the History.
func (h *History) Size() int {
	return len(h.ring)
}
