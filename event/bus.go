package event

import (
	"log/slog"
	"sync"
)

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine and must return quickly; anything slow should hand
// the event off to its own queue.
type Handler func(ev Event)

// Bus is an in-process publish/subscribe hub. It implements Sink.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
	logger   *slog.Logger
}

// NewBus creates an empty bus. A nil logger falls back to slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[int]Handler),
		logger:   logger.With("component", "event-bus"),
	}
}

// Subscribe registers a handler and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every subscribed handler. A panicking
// handler is logged and skipped; it never takes down the engine.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, ev)
	}
}

func (b *Bus) dispatch(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				"kind", ev.Kind(),
				"panic", r)
		}
	}()
	h(ev)
}
