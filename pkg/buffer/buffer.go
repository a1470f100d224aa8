// Package buffer provides a generic, thread-safe bounded ring buffer with
// configurable overflow policies. It backs the engine's completed-process
// and chain-execution histories and the gateway's per-client send queues.
//
// Statistics are always collected for observability.
package buffer

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota
	// DropNewest drops new items when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with an item that was discarded due to the
// overflow policy. It runs outside the buffer lock.
type DropCallback[T any] func(item T)

// Option configures a Ring.
type Option[T any] func(*options[T])

type options[T any] struct {
	policy       OverflowPolicy
	dropCallback DropCallback[T]
}

// WithOverflowPolicy sets the overflow policy (default DropOldest).
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(o *options[T]) {
		o.policy = policy
	}
}

// WithDropCallback registers a callback invoked for every dropped item.
func WithDropCallback[T any](cb DropCallback[T]) Option[T] {
	return func(o *options[T]) {
		o.dropCallback = cb
	}
}
