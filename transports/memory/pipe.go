package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/glimte/nativebridge/messaging"
)

var (
	ErrNotConnected = errors.New("memory transport: not connected")
	ErrClosed       = errors.New("memory transport: closed")
)

// End names one side of a pipe
type End string

const (
	EndFront  End = "front"
	EndNative End = "native"
)

// DropFunc decides whether a message published from end is lost
type DropFunc func(from End, body []byte) bool

// Option configures a pipe
type Option func(*pipeConfig)

type pipeConfig struct {
	bufferSize int
	drop       DropFunc
	logger     *slog.Logger
}

// WithBufferSize sets how many undelivered messages each end holds
func WithBufferSize(size int) Option {
	return func(c *pipeConfig) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// WithDropFunc injects message loss
func WithDropFunc(drop DropFunc) Option {
	return func(c *pipeConfig) {
		c.drop = drop
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *pipeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Transport is one end of an in-process message channel
type Transport struct {
	end    End
	peer   *Transport
	inbox  chan []byte
	drop   DropFunc
	logger *slog.Logger

	mu        sync.RWMutex
	handler   func(messaging.TransportDelivery) error
	connected bool
	closed    bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewPipe returns the two connected ends of one channel. Each end delivers
// its inbound messages on its own goroutine once connected.
func NewPipe(opts ...Option) (front, native *Transport) {
	cfg := &pipeConfig{
		bufferSize: 256,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	front = newEnd(EndFront, cfg)
	native = newEnd(EndNative, cfg)
	front.peer = native
	native.peer = front
	return front, native
}

func newEnd(end End, cfg *pipeConfig) *Transport {
	return &Transport{
		end:    end,
		inbox:  make(chan []byte, cfg.bufferSize),
		drop:   cfg.drop,
		logger: cfg.logger.With("transport", "memory", "end", string(end)),
		done:   make(chan struct{}),
	}
}

// End reports which side of the pipe this is
func (t *Transport) End() End {
	return t.end
}

// Publisher returns a transport publisher
func (t *Transport) Publisher() messaging.TransportPublisher {
	return &publisher{t: t}
}

// Subscriber returns a transport subscriber
func (t *Transport) Subscriber() messaging.TransportSubscriber {
	return &subscriber{t: t}
}

// Connect starts delivering inbound messages
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.connected {
		return nil
	}
	t.connected = true

	t.wg.Add(1)
	go t.run()
	return nil
}

// Close stops delivery; messages still buffered are discarded
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	t.handler = nil
	close(t.done)
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

// IsConnected returns connection status
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *Transport) run() {
	defer t.wg.Done()

	for {
		select {
		case <-t.done:
			return
		case body := <-t.inbox:
			t.deliver(body)
		}
	}
}

func (t *Transport) deliver(body []byte) {
	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()

	if handler == nil {
		t.logger.Debug("no subscriber, message discarded", "size", len(body))
		return
	}
	if err := handler(&delivery{body: body, end: t.end}); err != nil {
		t.logger.Warn("inbound handler failed", "error", err)
	}
}

func (t *Transport) send(ctx context.Context, body []byte) error {
	t.mu.RLock()
	connected, closed := t.connected, t.closed
	t.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if !connected {
		return ErrNotConnected
	}
	if t.drop != nil && t.drop(t.end, body) {
		t.logger.Debug("message dropped", "size", len(body))
		return nil
	}

	select {
	case <-t.peer.done:
		return ErrClosed
	default:
	}

	msg := append([]byte(nil), body...)
	select {
	case t.peer.inbox <- msg:
		return nil
	case <-t.peer.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

type publisher struct {
	t *Transport
}

func (p *publisher) Publish(ctx context.Context, body []byte) error {
	return p.t.send(ctx, body)
}

func (p *publisher) Close() error {
	return nil
}

type subscriber struct {
	t *Transport
}

func (s *subscriber) Subscribe(ctx context.Context, handler func(messaging.TransportDelivery) error) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.t.closed {
		return ErrClosed
	}
	s.t.handler = handler
	return nil
}

func (s *subscriber) Unsubscribe() error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.t.handler = nil
	return nil
}

func (s *subscriber) Close() error {
	return s.Unsubscribe()
}

type delivery struct {
	body []byte
	end  End
}

func (d *delivery) Body() []byte              { return d.body }
func (d *delivery) Acknowledge() error        { return nil }
func (d *delivery) Reject(requeue bool) error { return nil }

func (d *delivery) Headers() map[string]interface{} {
	return map[string]interface{}{"x-pipe-end": string(d.end)}
}
