package messaging

import (
	"context"
)

// TransportPublisher hands raw envelopes to the other side of the channel.
// Delivery is best-effort: a nil error means the transport accepted the
// payload, not that the peer received it.
type TransportPublisher interface {
	// Publish sends a raw JSON envelope
	Publish(ctx context.Context, body []byte) error

	// Close closes the publisher
	Close() error
}

// TransportSubscriber delivers raw envelopes arriving from the other side
type TransportSubscriber interface {
	// Subscribe registers the sole inbound handler. Deliveries may arrive
	// on any goroutine and in any order.
	Subscribe(ctx context.Context, handler func(delivery TransportDelivery) error) error

	// Unsubscribe stops delivery to the registered handler
	Unsubscribe() error

	// Close closes the subscriber
	Close() error
}

// TransportDelivery represents a message delivery from the transport
type TransportDelivery interface {
	// Body returns the message body
	Body() []byte

	// Acknowledge marks the message as successfully processed
	Acknowledge() error

	// Reject rejects the message with optional requeue
	Reject(requeue bool) error

	// Headers returns message headers
	Headers() map[string]interface{}
}

// Transport is one end of the message channel between the front-end
// and the native context
type Transport interface {
	// Publisher returns a transport publisher
	Publisher() TransportPublisher

	// Subscriber returns a transport subscriber
	Subscriber() TransportSubscriber

	// Connect establishes the channel
	Connect(ctx context.Context) error

	// Close closes all resources
	Close() error

	// IsConnected returns connection status
	IsConnected() bool
}

// HandlerFunc adapts a plain body handler to a subscriber callback.
// Deliveries are always acknowledged: the bridge never redelivers.
func HandlerFunc(fn func(body []byte)) func(TransportDelivery) error {
	return func(d TransportDelivery) error {
		fn(d.Body())
		return d.Acknowledge()
	}
}
