package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/nativebridge/contracts"
	"github.com/glimte/nativebridge/internal/reliability"
	"github.com/glimte/nativebridge/messaging"
)

// Correlator matches outstanding requests with their responses. Every
// pending call leaves the table exactly once, through take.
type Correlator struct {
	publisher      messaging.TransportPublisher
	pending        map[string]*Call
	mu             sync.Mutex
	closed         bool
	defaultTimeout time.Duration
	newID          func() string
	breaker        *reliability.CircuitBreaker
	metrics        MetricsCollector
	logger         *slog.Logger
}

// NewCorrelator creates a correlator sending through publisher
func NewCorrelator(publisher messaging.TransportPublisher, opts ...BridgeOption) *Correlator {
	cfg := newBridgeConfig(opts...)
	return &Correlator{
		publisher:      publisher,
		pending:        make(map[string]*Call),
		defaultTimeout: cfg.DefaultTimeout,
		newID:          cfg.IDGenerator,
		breaker:        cfg.CircuitBreaker,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}
}

// Call issues command to the native side and returns its eventual result.
// The call is registered before the envelope is sent so a fast response
// can never overtake its own pending entry.
func (c *Correlator) Call(ctx context.Context, command string, args interface{}, opts ...CallOption) *Call {
	cfg := callConfig{timeout: c.defaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = c.defaultTimeout
	}

	call := newCall(c.newID(), command, cfg.timeout)
	call.abandon = c.abandon

	if command == "" {
		call.complete(nil, contracts.ErrEmptyCommand)
		return call
	}

	req, err := contracts.NewRequest(call.ID, command, args)
	if err != nil {
		call.complete(nil, err)
		return call
	}
	body, err := json.Marshal(req)
	if err != nil {
		call.complete(nil, err)
		return call
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		call.complete(nil, contracts.ErrBridgeClosed)
		return call
	}
	c.pending[call.ID] = call
	call.timer = time.AfterFunc(cfg.timeout, func() { c.expire(call.ID) })
	c.mu.Unlock()

	c.metrics.RecordCall(command)
	c.logger.Debug("invoking native command", "command", command, "id", call.ID, "timeout", cfg.timeout)

	if err := c.send(ctx, body); err != nil {
		if p, ok := c.take(call.ID); ok {
			c.finish(p, nil, &contracts.SendError{Command: command, ID: call.ID, Err: err}, OutcomeSendError)
		}
	}

	return call
}

func (c *Correlator) send(ctx context.Context, body []byte) error {
	if c.breaker == nil {
		return c.publisher.Publish(ctx, body)
	}
	return c.breaker.Execute(ctx, func() error {
		return c.publisher.Publish(ctx, body)
	})
}

// Resolve completes the pending call for id with a raw result. It reports
// false when no such call is pending, e.g. it already timed out.
func (c *Correlator) Resolve(id string, result json.RawMessage) bool {
	call, ok := c.take(id)
	if !ok {
		return false
	}

	outcome := contracts.Classify(result)
	if outcome.Failed {
		c.finish(call, nil, &contracts.NativeError{
			Command: call.Command,
			ID:      call.ID,
			Code:    outcome.Code,
			Message: outcome.Message,
			Result:  result,
		}, OutcomeNativeError)
		return true
	}

	c.finish(call, result, nil, OutcomeSuccess)
	return true
}

// Pending returns the number of outstanding calls
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close fails every outstanding call with ErrBridgeClosed and rejects new ones
func (c *Correlator) Close() {
	c.mu.Lock()
	c.closed = true
	calls := make([]*Call, 0, len(c.pending))
	for id, call := range c.pending {
		calls = append(calls, call)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, call := range calls {
		c.finish(call, nil, contracts.ErrBridgeClosed, OutcomeClosed)
	}
}

// take is the atomic remove-if-present on the pending table
func (c *Correlator) take(id string) (*Call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return call, ok
}

func (c *Correlator) expire(id string) {
	call, ok := c.take(id)
	if !ok {
		return
	}
	c.logger.Warn("native command timed out", "command", call.Command, "id", id, "timeout", call.Timeout)
	c.finish(call, nil, &contracts.TimeoutError{Command: call.Command, ID: id, Timeout: call.Timeout}, OutcomeTimeout)
}

func (c *Correlator) abandon(call *Call, err error) {
	if p, ok := c.take(call.ID); ok {
		c.finish(p, nil, err, OutcomeCancelled)
	}
}

func (c *Correlator) finish(call *Call, result json.RawMessage, err error, outcome Outcome) {
	if call.timer != nil {
		call.timer.Stop()
	}
	if !call.complete(result, err) {
		return
	}
	c.metrics.RecordCompletion(call.Command, outcome, time.Since(call.IssuedAt))
	if err != nil && outcome != OutcomeTimeout {
		c.logger.Debug("native command failed", "command", call.Command, "id", call.ID, "outcome", outcome, "error", err)
	}
}
