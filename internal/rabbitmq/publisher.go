package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes on a single confirm-mode channel. A publish is
// attempted once; a failure is returned to the caller unchanged.
type Publisher struct {
	manager        *ConnectionManager
	confirmTimeout time.Duration
	confirms       bool
	logger         *slog.Logger

	mu     sync.Mutex
	ch     *amqp.Channel
	closed bool
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithConfirmTimeout bounds the wait for a broker confirm
func WithConfirmTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.confirmTimeout = timeout
	}
}

// WithConfirmMode enables or disables publisher confirms
func WithConfirmMode(enabled bool) PublisherOption {
	return func(p *Publisher) {
		p.confirms = enabled
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher creates a publisher on manager's connection
func NewPublisher(manager *ConnectionManager, options ...PublisherOption) *Publisher {
	p := &Publisher{
		manager:        manager,
		confirmTimeout: 5 * time.Second,
		confirms:       true,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish sends msg and, in confirm mode, waits for the broker to ack it
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	wrap := func(err error) error {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: err}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return wrap(ErrPublisherClosed)
	}
	ch, err := p.channel()
	if err != nil {
		p.mu.Unlock()
		return wrap(err)
	}
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, msg)
	if err != nil {
		// the channel is unusable after a failed publish
		p.dropChannel()
		p.mu.Unlock()
		return wrap(err)
	}
	p.mu.Unlock()

	if confirm == nil {
		return nil
	}

	timer := time.NewTimer(p.confirmTimeout)
	defer timer.Stop()

	select {
	case <-confirm.Done():
		if !confirm.Acked() {
			return wrap(ErrPublishNotConfirmed)
		}
		return nil
	case <-timer.C:
		return wrap(ErrPublishNotConfirmed)
	case <-ctx.Done():
		return wrap(ctx.Err())
	}
}

// channel returns the publishing channel, opening it if needed. Callers hold mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.manager.Channel()
	if err != nil {
		return nil, err
	}
	if p.confirms {
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			return nil, &ChannelError{Op: "confirm", Err: err}
		}
	}
	p.ch = ch
	p.logger.Debug("publisher channel opened", "confirms", p.confirms)
	return ch, nil
}

func (p *Publisher) dropChannel() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

// Close releases the publishing channel
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.dropChannel()
	return nil
}
