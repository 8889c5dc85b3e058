package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/nativebridge/contracts"
	"github.com/glimte/nativebridge/internal/reliability"
	"github.com/glimte/nativebridge/messaging"
	"github.com/google/uuid"
)

// DefaultTimeout applies to calls issued without an explicit timeout
const DefaultTimeout = 3 * time.Second

// Bridge turns a fire-and-forget transport into request/response calls
// and event subscriptions
type Bridge struct {
	transport  messaging.Transport
	correlator *Correlator
	router     *EventRouter
	dispatcher *Dispatcher
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
}

// BridgeOption configures the bridge
type BridgeOption func(*BridgeConfig)

// BridgeConfig holds configuration for the bridge
type BridgeConfig struct {
	DefaultTimeout time.Duration
	CircuitBreaker *reliability.CircuitBreaker
	Metrics        MetricsCollector
	IDGenerator    func() string
	Logger         *slog.Logger
}

func newBridgeConfig(opts ...BridgeOption) *BridgeConfig {
	cfg := &BridgeConfig{
		DefaultTimeout: DefaultTimeout,
		Metrics:        NoOpMetricsCollector{},
		IDGenerator:    func() string { return uuid.New().String() },
		Logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithDefaultTimeout sets the default timeout for calls
func WithDefaultTimeout(timeout time.Duration) BridgeOption {
	return func(c *BridgeConfig) {
		if timeout > 0 {
			c.DefaultTimeout = timeout
		}
	}
}

// WithBridgeCircuitBreaker guards the transport send with a circuit breaker
func WithBridgeCircuitBreaker(cb *reliability.CircuitBreaker) BridgeOption {
	return func(c *BridgeConfig) {
		c.CircuitBreaker = cb
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics MetricsCollector) BridgeOption {
	return func(c *BridgeConfig) {
		if metrics != nil {
			c.Metrics = metrics
		}
	}
}

// WithIDGenerator replaces the correlation id generator
func WithIDGenerator(gen func() string) BridgeOption {
	return func(c *BridgeConfig) {
		if gen != nil {
			c.IDGenerator = gen
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) BridgeOption {
	return func(c *BridgeConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// CallOption configures a single call
type CallOption func(*callConfig)

type callConfig struct {
	timeout time.Duration
}

// WithTimeout overrides the default timeout for one call
func WithTimeout(timeout time.Duration) CallOption {
	return func(c *callConfig) {
		c.timeout = timeout
	}
}

// NewBridge creates a bridge over transport and starts consuming its
// inbound messages
func NewBridge(transport messaging.Transport, opts ...BridgeOption) (*Bridge, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}

	correlator := NewCorrelator(transport.Publisher(), opts...)
	router := NewEventRouter(opts...)
	cfg := newBridgeConfig(opts...)

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		transport:  transport,
		correlator: correlator,
		router:     router,
		dispatcher: NewDispatcher(correlator, router, opts...),
		logger:     cfg.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	if !transport.IsConnected() {
		if err := transport.Connect(ctx); err != nil {
			cancel()
			b.dispatcher.Close()
			return nil, fmt.Errorf("failed to connect transport: %w", err)
		}
	}

	err := transport.Subscriber().Subscribe(ctx, messaging.HandlerFunc(func(body []byte) {
		b.dispatcher.OnMessage(b.ctx, body)
	}))
	if err != nil {
		cancel()
		b.dispatcher.Close()
		return nil, fmt.Errorf("failed to subscribe to inbound messages: %w", err)
	}

	return b, nil
}

// Invoke calls command on the native side and waits for its result. It
// fails with a *contracts.TimeoutError, *contracts.NativeError,
// *contracts.SendError, contracts.ErrBridgeClosed or the ctx error.
func (b *Bridge) Invoke(ctx context.Context, command string, args interface{}, opts ...CallOption) (json.RawMessage, error) {
	return b.Go(ctx, command, args, opts...).Wait(ctx)
}

// Go calls command without waiting; the returned Call completes later
func (b *Bridge) Go(ctx context.Context, command string, args interface{}, opts ...CallOption) *Call {
	return b.correlator.Call(ctx, command, args, opts...)
}

// On subscribes handler to event and returns its unsubscribe function
func (b *Bridge) On(event string, handler EventHandler) func() {
	return b.router.Subscribe(event, handler)
}

// OnMessage feeds a raw inbound message to the dispatcher. Transports
// subscribed through NewBridge call this already.
func (b *Bridge) OnMessage(raw []byte) {
	b.dispatcher.OnMessage(b.ctx, raw)
}

// PendingCount returns the number of outstanding calls
func (b *Bridge) PendingCount() int {
	return b.correlator.Pending()
}

// Router returns the event router
func (b *Bridge) Router() *EventRouter {
	return b.router
}

// Transport returns the underlying transport
func (b *Bridge) Transport() messaging.Transport {
	return b.transport
}

// Close fails all pending calls, drops queued events and stops consuming
// inbound messages. It may be called from an event handler. The transport
// itself is left open for its owner to close.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.correlator.Close()
		b.dispatcher.Close()
		b.cancel()
		err = b.transport.Subscriber().Unsubscribe()
	})
	return err
}

// InvokeTyped calls command and decodes the result into T
func InvokeTyped[T any](ctx context.Context, b *Bridge, command string, args interface{}, opts ...CallOption) (T, error) {
	var zero T

	raw, err := b.Invoke(ctx, command, args, opts...)
	if err != nil {
		return zero, err
	}
	return contracts.DecodeResult[T](raw)
}
