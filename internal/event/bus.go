package event

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the bus queue capacity when none is configured.
const DefaultQueueSize = 1024

// Handler consumes notifications delivered by the Bus.
type Handler func(ctx context.Context, ev Event)

// Bus is an asynchronous fan-out Sink.
// Publish enqueues without blocking; a single dispatcher goroutine (Start)
// delivers every notification to all subscribers in publish order.
// When the queue is full the notification is dropped and counted.
type Bus struct {
	queue chan Event

	mu       sync.RWMutex
	handlers []Handler

	dropped atomic.Uint64
}

// NewBus creates a bus with the given queue capacity.
func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{queue: make(chan Event, queueSize)}
}

// Subscribe registers a handler. Handlers run on the dispatcher goroutine
// and must not block for long.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish implements Sink.
func (b *Bus) Publish(ev Event) {
	select {
	case b.queue <- ev:
	default:
		// Не блокируем вызывающего: очередь переполнена, событие теряется.
		b.dropped.Add(1)
		slog.Warn("event queue full, notification dropped",
			"kind", ev.Kind(),
			"player", ev.Subject())
	}
}

// Dropped returns number of notifications dropped because the queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Start dispatches queued notifications until ctx is cancelled.
func (b *Bus) Start(ctx context.Context) error {
	slog.Info("event bus started", "queue", cap(b.queue))

	for {
		select {
		case <-ctx.Done():
			slog.Info("event bus stopping", "pending", len(b.queue))
			return ctx.Err()

		case ev := <-b.queue:
			b.dispatch(ctx, ev)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, ev Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
}
