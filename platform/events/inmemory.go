package events

import (
	"context"
	"sync"
	"time"

	"marketingops_backend/platform/logger"
)

// handlerTimeout bounds a single handler invocation so a stuck subscriber
// cannot leak goroutines forever.
const handlerTimeout = 30 * time.Second

// InMemoryBus is a simple in-process event bus. Handlers run on their own
// goroutines; publishing never blocks the caller.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for the given event name.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish fans the event out to all subscribed handlers asynchronously.
// Handler errors are logged and swallowed: observers must not affect the
// publishing code path.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	subscribed := make([]Handler, len(b.handlers[event.EventName()]))
	copy(subscribed, b.handlers[event.EventName()])
	b.mu.RUnlock()

	for _, handler := range subscribed {
		go func(h Handler) {
			// Detach from the request context: the HTTP request may complete
			// before the handler does.
			hctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
			defer cancel()

			if err := h.Handle(hctx, event); err != nil && b.log != nil {
				b.log.Error("event handler failed",
					"event", event.EventName(),
					"error", err,
				)
			}
		}(handler)
	}
}
