package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/nativebridge/internal/rabbitmq"
	"github.com/glimte/nativebridge/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange   = "nativebridge"
	DefaultToNative   = "nativebridge.to-native"
	DefaultFromNative = "nativebridge.from-native"
)

// Role selects which side of the bridge a transport serves
type Role string

const (
	// RoleFront publishes to the native queue and consumes the front queue
	RoleFront Role = "front"
	// RoleNative consumes the native queue and publishes to the front queue
	RoleNative Role = "native"
)

// ParseRole parses a role name
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleFront, RoleNative:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q (want %q or %q)", s, RoleFront, RoleNative)
}

// TransportConfig holds configuration for the transport
type TransportConfig struct {
	Role              Role
	Exchange          string
	ToNativeQueue     string
	FromNativeQueue   string
	MessageTTL        time.Duration
	PrefetchCount     int
	Logger            *slog.Logger
	ConnectionOptions []rabbitmq.ConnectionOption
	PublisherOptions  []rabbitmq.PublisherOption
}

// TransportOption configures the transport
type TransportOption func(*TransportConfig)

// WithRole sets which side of the bridge this transport serves
func WithRole(role Role) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Role = role
	}
}

// WithExchange overrides the exchange name
func WithExchange(name string) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Exchange = name
	}
}

// WithQueues overrides both queue names
func WithQueues(toNative, fromNative string) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ToNativeQueue = toNative
		cfg.FromNativeQueue = fromNative
	}
}

// WithMessageTTL expires messages left unconsumed longer than ttl
func WithMessageTTL(ttl time.Duration) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.MessageTTL = ttl
	}
}

// WithPrefetch sets how many unacknowledged deliveries the broker pushes
func WithPrefetch(count int) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.PrefetchCount = count
	}
}

// WithLogger sets the logger for the transport and its plumbing
func WithLogger(logger *slog.Logger) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Logger = logger
	}
}

// WithConnectionOptions sets connection options
func WithConnectionOptions(opts ...rabbitmq.ConnectionOption) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ConnectionOptions = append(cfg.ConnectionOptions, opts...)
	}
}

// WithPublisherOptions sets publisher options
func WithPublisherOptions(opts ...rabbitmq.PublisherOption) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.PublisherOptions = append(cfg.PublisherOptions, opts...)
	}
}

// Transport implements messaging.Transport over a RabbitMQ direct exchange
type Transport struct {
	cfg       TransportConfig
	manager   *rabbitmq.ConnectionManager
	publisher *rabbitmq.Publisher
	consumer  *rabbitmq.Consumer
	logger    *slog.Logger

	mu       sync.Mutex
	declared bool
}

// NewTransport creates a transport for url. It does not dial; call
// Connect, or hand it to a bridge or host which connects on start.
func NewTransport(url string, options ...TransportOption) (*Transport, error) {
	cfg := TransportConfig{
		Role:            RoleFront,
		Exchange:        DefaultExchange,
		ToNativeQueue:   DefaultToNative,
		FromNativeQueue: DefaultFromNative,
		PrefetchCount:   32,
		Logger:          slog.Default(),
	}
	for _, opt := range options {
		opt(&cfg)
	}

	if _, err := ParseRole(string(cfg.Role)); err != nil {
		return nil, err
	}
	if cfg.ToNativeQueue == cfg.FromNativeQueue {
		return nil, fmt.Errorf("queue names must differ, both are %q", cfg.ToNativeQueue)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "rabbitmq", "role", string(cfg.Role))

	manager := rabbitmq.NewConnectionManager(url,
		append([]rabbitmq.ConnectionOption{rabbitmq.WithLogger(logger)}, cfg.ConnectionOptions...)...)

	t := &Transport{
		cfg:     cfg,
		manager: manager,
		publisher: rabbitmq.NewPublisher(manager,
			append([]rabbitmq.PublisherOption{rabbitmq.WithPublisherLogger(logger)}, cfg.PublisherOptions...)...),
		consumer: rabbitmq.NewConsumer(manager,
			rabbitmq.WithPrefetchCount(cfg.PrefetchCount),
			rabbitmq.WithConsumerLogger(logger)),
		logger: logger,
	}
	manager.AddStateListener(t)
	return t, nil
}

// Role returns the side this transport serves
func (t *Transport) Role() Role {
	return t.cfg.Role
}

// PublishQueue is the queue this transport sends to
func (t *Transport) PublishQueue() string {
	if t.cfg.Role == RoleNative {
		return t.cfg.FromNativeQueue
	}
	return t.cfg.ToNativeQueue
}

// ConsumeQueue is the queue this transport receives from
func (t *Transport) ConsumeQueue() string {
	if t.cfg.Role == RoleNative {
		return t.cfg.ToNativeQueue
	}
	return t.cfg.FromNativeQueue
}

// Topology returns the broker objects the transport declares
func (t *Transport) Topology() rabbitmq.Topology {
	return rabbitmq.BridgeTopology(t.cfg.Exchange, t.cfg.ToNativeQueue, t.cfg.FromNativeQueue, t.cfg.MessageTTL)
}

// Connect dials the broker and declares the topology
func (t *Transport) Connect(ctx context.Context) error {
	if err := t.manager.Connect(ctx); err != nil {
		return err
	}
	return t.declare(ctx)
}

func (t *Transport) declare(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.declared {
		return nil
	}
	if err := rabbitmq.DeclareTopology(ctx, t.manager, t.Topology()); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}
	t.declared = true
	return nil
}

// OnConnected re-declares the topology after a reconnect, in case the
// broker lost non-durable state
func (t *Transport) OnConnected() {
	t.mu.Lock()
	t.declared = false
	t.mu.Unlock()
	if err := t.declare(context.Background()); err != nil {
		t.logger.Error("failed to re-declare topology", "error", err)
	}
}

func (t *Transport) OnDisconnected(err error) {
	t.logger.Warn("broker disconnected", "error", err)
}

func (t *Transport) OnReconnecting(attempt int) {
	t.logger.Debug("broker reconnecting", "attempt", attempt)
}

// Publisher returns a transport publisher
func (t *Transport) Publisher() messaging.TransportPublisher {
	return &publisherAdapter{t: t}
}

// Subscriber returns a transport subscriber
func (t *Transport) Subscriber() messaging.TransportSubscriber {
	return &subscriberAdapter{t: t}
}

// Close stops consuming and closes the connection
func (t *Transport) Close() error {
	_ = t.consumer.Unsubscribe()
	_ = t.publisher.Close()
	return t.manager.Close()
}

// IsConnected returns connection status
func (t *Transport) IsConnected() bool {
	return t.manager.IsConnected()
}

type publisherAdapter struct {
	t *Transport
}

// Publish routes body to the peer's queue
func (p *publisherAdapter) Publish(ctx context.Context, body []byte) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		Body:         body,
		Headers:      amqp.Table{"x-bridge-role": string(p.t.cfg.Role)},
	}
	return p.t.publisher.Publish(ctx, p.t.cfg.Exchange, p.t.PublishQueue(), msg)
}

func (p *publisherAdapter) Close() error {
	return p.t.publisher.Close()
}

type subscriberAdapter struct {
	t *Transport
}

// Subscribe consumes this side's queue
func (s *subscriberAdapter) Subscribe(ctx context.Context, handler func(messaging.TransportDelivery) error) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	return s.t.consumer.Subscribe(ctx, s.t.ConsumeQueue(), func(ctx context.Context, d amqp.Delivery) error {
		return handler(&deliveryAdapter{delivery: d})
	})
}

func (s *subscriberAdapter) Unsubscribe() error {
	return s.t.consumer.Unsubscribe()
}

func (s *subscriberAdapter) Close() error {
	return s.t.consumer.Unsubscribe()
}

// deliveryAdapter adapts amqp.Delivery to TransportDelivery
type deliveryAdapter struct {
	delivery amqp.Delivery
}

func (d *deliveryAdapter) Body() []byte {
	return d.delivery.Body
}

func (d *deliveryAdapter) Acknowledge() error {
	return d.delivery.Ack(false)
}

func (d *deliveryAdapter) Reject(requeue bool) error {
	return d.delivery.Nack(false, requeue)
}

func (d *deliveryAdapter) Headers() map[string]interface{} {
	headers := make(map[string]interface{}, len(d.delivery.Headers))
	for k, v := range d.delivery.Headers {
		headers[k] = v
	}
	return headers
}
