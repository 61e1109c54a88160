// Package event provides the in-process domain event bus. Handlers always run
// in a context that carries the event's tenant, so a handler that opens a
// session lands on the datasource of the tenant that raised the event, even
// when it runs after the originating request has finished.
package event

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ampairs/backend/internal/domain/shared"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// ErrBusStopped is returned by PublishAsync once Stop has been called.
var ErrBusStopped = errors.New("event bus is stopped")

// InMemoryEventBus implements EventBus with in-memory pub/sub
type InMemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler
	wildcard []shared.EventHandler

	logger *zap.Logger

	// stateMu orders PublishAsync's wg.Add against Stop's wg.Wait
	stateMu sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		handlers: make(map[string][]shared.EventHandler),
		logger:   logger,
	}
}

// Publish dispatches events to all registered handlers before returning.
// Handler errors are logged and do not stop delivery to other handlers.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	fallback, _ := tenancy.FromContext(ctx)
	for _, evt := range events {
		b.dispatch(ctx, evt, fallback)
	}
	return nil
}

// PublishAsync dispatches events on a background goroutine. The tenant is
// captured now: the request's holder is cleared when the request ends, and
// request cancellation does not abort the handlers.
func (b *InMemoryEventBus) PublishAsync(ctx context.Context, events ...shared.DomainEvent) error {
	fallback, _ := tenancy.FromContext(ctx)
	base := context.WithoutCancel(ctx)

	b.stateMu.Lock()
	if !b.running {
		b.stateMu.Unlock()
		return ErrBusStopped
	}
	b.wg.Add(1)
	b.stateMu.Unlock()

	go func() {
		defer b.wg.Done()
		for _, evt := range events {
			b.dispatch(base, evt, fallback)
		}
	}()
	return nil
}

// Subscribe registers a handler for specific event types. Without explicit
// types the handler's own EventTypes are used; an empty list subscribes to
// every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}

	b.mu.Lock()
	if len(eventTypes) == 0 {
		b.wildcard = append(b.wildcard, handler)
	}
	for _, eventType := range eventTypes {
		b.handlers[eventType] = append(b.handlers[eventType], handler)
	}
	b.mu.Unlock()

	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler from every event type
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.wildcard = removeHandler(b.wildcard, handler)
	for eventType, handlers := range b.handlers {
		if remaining := removeHandler(handlers, handler); len(remaining) > 0 {
			b.handlers[eventType] = remaining
		} else {
			delete(b.handlers, eventType)
		}
	}
}

// Start allows asynchronous publishing
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.stateMu.Lock()
	b.running = true
	b.stateMu.Unlock()
	b.logger.Info("event bus started")
	return nil
}

// Stop rejects new asynchronous publishes and waits for in-flight ones,
// giving up when ctx is done.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.stateMu.Lock()
	b.running = false
	b.stateMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InMemoryEventBus) handlersFor(eventType string) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	typed := b.handlers[eventType]
	result := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	result = append(result, typed...)
	return append(result, b.wildcard...)
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, evt shared.DomainEvent, fallback tenancy.ID) {
	id := tenancy.ID(evt.TenantID())
	if id.IsZero() {
		id = fallback
	}

	for _, handler := range b.handlersFor(evt.EventType()) {
		// a fresh holder per handler: one handler switching tenants cannot leak into the next
		hctx := tenancy.ContextWithTenant(ctx, id)
		if err := b.dispatchToHandler(hctx, handler, evt); err != nil {
			b.logger.Error("handler failed to process event",
				zap.String("event_type", evt.EventType()),
				zap.String("event_id", evt.EventID().String()),
				zap.String("tenant_id", id.String()),
				zap.Error(err),
			)
		}
	}
}

// dispatchToHandler safely dispatches an event to a handler
func (b *InMemoryEventBus) dispatchToHandler(ctx context.Context, handler shared.EventHandler, evt shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", evt.EventType()),
				zap.Any("panic", r),
			)
		}
	}()

	return handler.Handle(ctx, evt)
}

func removeHandler(handlers []shared.EventHandler, target shared.EventHandler) []shared.EventHandler {
	result := make([]shared.EventHandler, 0, len(handlers))
	for _, h := range handlers {
		if h != target {
			result = append(result, h)
		}
	}
	return result
}

// Ensure InMemoryEventBus implements EventBus
var _ shared.EventBus = (*InMemoryEventBus)(nil)
