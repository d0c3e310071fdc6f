// Package eventbus provides the in-process implementation of the domain
// event bus. This is the infrastructure adapter for domain.EventBus.
package eventbus

import (
	"sync"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/logger"
)

// DefaultHistorySize bounds the retained global event history.
const DefaultHistorySize = 100

// subscription pairs a handler with a removable identity.
type subscription struct {
	id      int
	handler domain.EventHandler
}

// InProcessEventBus dispatches events to registered handlers without
// awaiting their completion: each handler runs on its own goroutine and a
// panic in one handler is logged without affecting the publisher or the
// other handlers. Handlers must therefore be idempotent and tolerant of
// reordering.
//
// The bus is explicitly constructed and injected — never a package global —
// so tests run isolated instances.
type InProcessEventBus struct {
	mu          sync.RWMutex
	enabled     bool
	closed      bool
	nextSubID   int
	handlers    map[domain.EventType][]subscription
	allHandlers []subscription

	history    []domain.Event
	historyCap int
}

// Option configures a bus at construction.
type Option func(*InProcessEventBus)

// WithHistorySize overrides the retained history bound.
func WithHistorySize(n int) Option {
	return func(b *InProcessEventBus) {
		if n > 0 {
			b.historyCap = n
		}
	}
}

// New creates a new in-process event bus. The enabled flag is the feature
// gate: a disabled bus accepts calls but delivers nothing.
func New(enabled bool, opts ...Option) *InProcessEventBus {
	b := &InProcessEventBus{
		enabled:    enabled,
		handlers:   make(map[domain.EventType][]subscription),
		historyCap: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enabled reports whether the bus delivers events.
func (b *InProcessEventBus) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled && !b.closed
}

// Publish records the event in the bounded history and dispatches it to
// every matching handler (exact-type plus wildcard), fire-and-forget.
// A no-op when the bus is disabled or closed.
func (b *InProcessEventBus) Publish(event domain.Event) {
	b.mu.Lock()
	if !b.enabled || b.closed {
		b.mu.Unlock()
		return
	}

	b.history = append(b.history, event)
	if len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}

	matched := make([]domain.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	for _, sub := range b.handlers[event.EventType()] {
		matched = append(matched, sub.handler)
	}
	for _, sub := range b.allHandlers {
		matched = append(matched, sub.handler)
	}
	b.mu.Unlock()

	for _, handler := range matched {
		go b.dispatch(handler, event)
	}
}

func (b *InProcessEventBus) dispatch(handler domain.EventHandler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("bus", "Event handler panicked", map[string]interface{}{
				"event": string(event.EventType()),
				"panic": r,
			})
		}
	}()
	handler(event)
}

// PublishBatch publishes events sequentially, preserving event order in
// the history. Handler completion order is still unordered.
func (b *InProcessEventBus) PublishBatch(events []domain.Event) {
	for _, event := range events {
		b.Publish(event)
	}
}

// Subscribe registers a handler for a specific event type and returns an
// unsubscribe token. EventTypeWildcard subscribes to every event. On a
// disabled bus the token is a no-op and nothing is registered — callers
// must not assume delivery.
func (b *InProcessEventBus) Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.Unsubscribe {
	if eventType == domain.EventTypeWildcard {
		return b.SubscribeAll(handler)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled || b.closed {
		return func() {}
	}

	b.nextSubID++
	id := b.nextSubID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[eventType] = removeSub(b.handlers[eventType], id)
	}
}

// SubscribeAll registers a handler that receives every event.
func (b *InProcessEventBus) SubscribeAll(handler domain.EventHandler) domain.Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled || b.closed {
		return func() {}
	}

	b.nextSubID++
	id := b.nextSubID
	b.allHandlers = append(b.allHandlers, subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.allHandlers = removeSub(b.allHandlers, id)
	}
}

// removeSub returns a new slice without the given subscription. The slice
// is rebuilt rather than mutated so concurrent readers holding the old one
// never observe a half-updated list.
func removeSub(subs []subscription, id int) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// History returns a copy of the retained event history, oldest first.
func (b *InProcessEventBus) History() []domain.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Event, len(b.history))
	copy(out, b.history)
	return out
}

// AggregateHistory returns retained events for one aggregate, oldest first.
func (b *InProcessEventBus) AggregateHistory(id domain.EntityID) []domain.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.Event
	for _, e := range b.history {
		if e.AggregateID() == id {
			out = append(out, e)
		}
	}
	return out
}

// HandlerCount returns the number of handlers for a type. The wildcard
// type returns the total across all registrations.
func (b *InProcessEventBus) HandlerCount(eventType domain.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if eventType == domain.EventTypeWildcard {
		count := len(b.allHandlers)
		for _, subs := range b.handlers {
			count += len(subs)
		}
		return count
	}
	return len(b.handlers[eventType]) + len(b.allHandlers)
}

// Close marks the bus as closed. No more events will be dispatched.
func (b *InProcessEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Verify interface compliance at compile time.
var _ domain.EventBus = (*InProcessEventBus)(nil)
