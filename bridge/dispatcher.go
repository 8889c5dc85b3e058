package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/glimte/nativebridge/contracts"
)

// Dispatcher is the single entry point for messages from the native side.
// It routes responses to the correlator and events to the router, and
// ignores everything else.
//
// Responses are resolved on the caller's goroutine. Events are queued and
// handed to the router by a worker goroutine, so a handler may itself
// Invoke and wait without holding up the delivery of its response.
type Dispatcher struct {
	correlator *Correlator
	router     *EventRouter
	metrics    MetricsCollector
	logger     *slog.Logger

	mu     sync.Mutex
	queue  []queuedEvent
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

type queuedEvent struct {
	ctx  context.Context
	name string
	data json.RawMessage
}

// NewDispatcher creates a dispatcher over correlator and router and starts
// its event worker. Close stops the worker.
func NewDispatcher(correlator *Correlator, router *EventRouter, opts ...BridgeOption) *Dispatcher {
	cfg := newBridgeConfig(opts...)
	d := &Dispatcher{
		correlator: correlator,
		router:     router,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go d.run()
	return d
}

// OnMessage classifies and routes one raw inbound message. It never panics
// or blocks; unknown ids, unknown events and malformed payloads are silent
// no-ops.
func (d *Dispatcher) OnMessage(ctx context.Context, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("recovered while dispatching inbound message", "panic", rec)
		}
	}()

	if len(raw) == 0 {
		d.metrics.RecordDropped(DropEmpty)
		return
	}

	msg := contracts.ParseInbound(raw)
	switch msg.Kind {
	case contracts.KindResponse:
		if !d.correlator.Resolve(msg.Response.ID, msg.Response.Result) {
			d.metrics.RecordDropped(DropUnknownID)
			d.logger.Debug("no pending call for response", "id", msg.Response.ID)
		}

	case contracts.KindEvent:
		d.enqueue(queuedEvent{ctx: ctx, name: msg.Event.Event, data: msg.Event.Data})

	default:
		d.metrics.RecordDropped(DropUnrecognized)
		d.logger.Debug("ignoring unrecognized inbound message", "size", len(raw))
	}
}

// Close stops the event worker. Events still queued are dropped. Close
// does not wait for a handler that is running, so it is safe to call from
// inside one.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	dropped := len(d.queue)
	d.queue = nil
	d.mu.Unlock()

	close(d.done)
	for i := 0; i < dropped; i++ {
		d.metrics.RecordDropped(DropClosed)
	}
}

// Queued returns the number of events waiting for the worker
func (d *Dispatcher) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) enqueue(ev queuedEvent) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.metrics.RecordDropped(DropClosed)
		return
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) next() (queuedEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.queue) == 0 {
		return queuedEvent{}, false
	}
	ev := d.queue[0]
	d.queue[0] = queuedEvent{}
	d.queue = d.queue[1:]
	return ev, true
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}
		for {
			ev, ok := d.next()
			if !ok {
				break
			}
			d.dispatch(ev)
		}
	}
}

func (d *Dispatcher) dispatch(ev queuedEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("recovered while dispatching event", "event", ev.name, "panic", rec)
		}
	}()
	d.router.Dispatch(ev.ctx, ev.name, ev.data)
}
