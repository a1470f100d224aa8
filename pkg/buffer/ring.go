package buffer

import "sync"

// Ring is a fixed-capacity circular buffer. All methods are safe for
// concurrent use.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	stats    *Statistics
	opts     options[T]
}

// NewRing creates a ring buffer with the given capacity. Capacities below
// one are raised to one.
func NewRing[T any](capacity int, opts ...Option[T]) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	o := options[T]{policy: DropOldest}
	for _, opt := range opts {
		opt(&o)
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		opts:     o,
	}
}

// Write adds an item according to the overflow policy. It reports whether
// the item was stored (false only under DropNewest on a full buffer).
func (r *Ring[T]) Write(item T) bool {
	var dropped T
	var didDrop bool

	r.mu.Lock()
	if r.size == r.capacity {
		r.stats.Overflow()
		switch r.opts.policy {
		case DropNewest:
			r.stats.Drop()
			r.mu.Unlock()
			if r.opts.dropCallback != nil {
				r.opts.dropCallback(item)
			}
			return false
		default: // DropOldest
			dropped = r.items[r.tail]
			didDrop = true
			r.tail = (r.tail + 1) % r.capacity
			r.size--
			r.stats.Drop()
		}
	}
	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++
	r.stats.Write()
	r.mu.Unlock()

	if didDrop && r.opts.dropCallback != nil {
		r.opts.dropCallback(dropped)
	}
	return true
}

// Read retrieves and removes the oldest item.
func (r *Ring[T]) Read() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	item := r.items[r.tail]
	r.items[r.tail] = zero
	r.tail = (r.tail + 1) % r.capacity
	r.size--
	r.stats.Read()
	return item, true
}

// Peek returns the oldest item without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[r.tail], true
}

// Items returns a snapshot of the buffered items, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.items[(r.tail+i)%r.capacity])
	}
	return out
}

// Len returns the current number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Clear removes all items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head, r.tail, r.size = 0, 0, 0
}

// Stats returns the buffer's statistics.
func (r *Ring[T]) Stats() *Statistics {
	return r.stats
}
