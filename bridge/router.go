package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// EventHandler receives the data of one event notification. A returned
// error or a panic is logged and isolated from the other handlers.
type EventHandler func(ctx context.Context, payload json.RawMessage) error

type subscription struct {
	handler EventHandler
}

// EventRouter fans event notifications out to their subscribers
type EventRouter struct {
	subscribers map[string][]*subscription
	mu          sync.RWMutex
	metrics     MetricsCollector
	logger      *slog.Logger
}

// NewEventRouter creates an empty event router
func NewEventRouter(opts ...BridgeOption) *EventRouter {
	cfg := newBridgeConfig(opts...)
	return &EventRouter{
		subscribers: make(map[string][]*subscription),
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Subscribe registers handler for event and returns a function removing
// exactly this registration. Calling it more than once is a no-op.
func (r *EventRouter) Subscribe(event string, handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	sub := &subscription{handler: handler}

	r.mu.Lock()
	r.subscribers[event] = append(r.subscribers[event], sub)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(event, sub) })
	}
}

func (r *EventRouter) remove(event string, sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subscribers[event]
	kept := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		if s != sub {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(r.subscribers, event)
		return
	}
	r.subscribers[event] = kept
}

// Dispatch invokes every handler registered for event at the time of the
// call and returns how many ran. Handlers added or removed meanwhile do
// not affect this pass.
func (r *EventRouter) Dispatch(ctx context.Context, event string, payload json.RawMessage) int {
	r.mu.RLock()
	subs := make([]*subscription, len(r.subscribers[event]))
	copy(subs, r.subscribers[event])
	r.mu.RUnlock()

	if len(subs) == 0 {
		r.metrics.RecordDropped(DropNoSubscriber)
		return 0
	}

	for _, sub := range subs {
		if err := r.invoke(ctx, sub.handler, payload); err != nil {
			r.metrics.RecordHandlerFailure(event)
			r.logger.Error("event handler failed", "event", event, "error", err)
		}
	}

	r.metrics.RecordEvent(event, len(subs))
	return len(subs)
}

func (r *EventRouter) invoke(ctx context.Context, handler EventHandler, payload json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return handler(ctx, append(json.RawMessage(nil), payload...))
}

// SubscriberCount returns the number of handlers registered for event
func (r *EventRouter) SubscriberCount(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers[event])
}

// Events returns the names that currently have subscribers
func (r *EventRouter) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]string, 0, len(r.subscribers))
	for event := range r.subscribers {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}
