package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler processes one delivery. Acknowledging it is up to the
// handler unless the consumer runs in auto-ack mode.
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// Consumer consumes a single queue and re-attaches to it after the
// connection is re-established
type Consumer struct {
	manager       *ConnectionManager
	prefetchCount int
	autoAck       bool
	exclusive     bool
	retryDelay    time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	queue   string
	tag     string
	cancel  context.CancelFunc
	stopped chan struct{}
}

// ConsumerOption configures the consumer
type ConsumerOption func(*Consumer)

// WithPrefetchCount sets the prefetch count
func WithPrefetchCount(count int) ConsumerOption {
	return func(c *Consumer) {
		c.prefetchCount = count
	}
}

// WithAutoAck lets the broker consider deliveries acknowledged on send
func WithAutoAck(autoAck bool) ConsumerOption {
	return func(c *Consumer) {
		c.autoAck = autoAck
	}
}

// WithExclusive requests exclusive access to the queue
func WithExclusive(exclusive bool) ConsumerOption {
	return func(c *Consumer) {
		c.exclusive = exclusive
	}
}

// WithResubscribeDelay sets the pause between attempts to re-attach
func WithResubscribeDelay(delay time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.retryDelay = delay
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsumer creates a consumer on manager's connection
func NewConsumer(manager *ConnectionManager, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		manager:       manager,
		prefetchCount: 32,
		retryDelay:    time.Second,
		logger:        slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Subscribe starts consuming queue. The first attach happens before
// Subscribe returns so a missing queue is reported to the caller.
func (c *Consumer) Subscribe(ctx context.Context, queue string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return &ConsumerError{Queue: queue, Op: "subscribe", Err: ErrAlreadyConsuming}
	}

	tag := "nativebridge-" + uuid.NewString()
	ch, deliveries, err := c.attach(queue, tag)
	if err != nil {
		return &ConsumerError{Queue: queue, Op: "subscribe", Err: err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.queue = queue
	c.tag = tag
	c.cancel = cancel
	c.stopped = make(chan struct{})

	go c.run(runCtx, ch, deliveries, handler, c.stopped)

	c.logger.Info("consuming queue", "queue", queue, "consumerTag", tag, "prefetch", c.prefetchCount)
	return nil
}

func (c *Consumer) attach(queue, tag string) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.manager.Channel()
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Qos(c.prefetchCount, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, &ChannelError{Op: "qos", Err: err}
	}
	deliveries, err := ch.Consume(queue, tag, c.autoAck, c.exclusive, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	return ch, deliveries, nil
}

func (c *Consumer) run(ctx context.Context, ch *amqp.Channel, deliveries <-chan amqp.Delivery, handler MessageHandler, stopped chan struct{}) {
	defer close(stopped)

	for {
		if !c.drain(ctx, deliveries, handler) {
			_ = ch.Close()
			return
		}

		c.logger.Warn("delivery channel closed, re-attaching", "queue", c.queue)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.manager.Done():
				return
			case <-time.After(c.retryDelay):
			}

			var err error
			ch, deliveries, err = c.attach(c.queue, c.tag)
			if err == nil {
				c.logger.Info("re-attached to queue", "queue", c.queue)
				break
			}
			c.logger.Debug("re-attach failed", "queue", c.queue, "error", err)
		}
	}
}

// drain handles deliveries until ctx ends (false) or the channel closes (true)
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery, handler MessageHandler) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case d, ok := <-deliveries:
			if !ok {
				return ctx.Err() == nil
			}
			if err := handler(ctx, d); err != nil {
				c.logger.Error("failed to handle delivery",
					"error", err,
					"queue", c.queue,
					"deliveryTag", d.DeliveryTag,
				)
			}
		}
	}
}

// Unsubscribe stops consuming and waits for the loop to exit
func (c *Consumer) Unsubscribe() error {
	c.mu.Lock()
	cancel, stopped := c.cancel, c.stopped
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-stopped
	c.logger.Info("consumer stopped", "queue", c.queue)
	return nil
}

// Active reports whether the consumer is subscribed
func (c *Consumer) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}
