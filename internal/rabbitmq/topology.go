package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeDeclaration defines an exchange to be declared
type ExchangeDeclaration struct {
	Name       string
	Type       string
	Durable    bool
	AutoDelete bool
	Arguments  amqp.Table
}

// QueueDeclaration defines a queue to be declared
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Arguments  amqp.Table
}

// Binding defines a queue-to-exchange binding
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  amqp.Table
}

// Topology is the set of broker objects a transport needs
type Topology struct {
	Exchanges []ExchangeDeclaration
	Queues    []QueueDeclaration
	Bindings  []Binding
}

// BridgeTopology describes one direct exchange with a queue per
// direction, each bound under its own name. A positive ttl expires
// messages nobody consumed in time.
func BridgeTopology(exchange, toNative, fromNative string, ttl time.Duration) Topology {
	var args amqp.Table
	if ttl > 0 {
		args = amqp.Table{"x-message-ttl": ttl.Milliseconds()}
	}

	t := Topology{
		Exchanges: []ExchangeDeclaration{
			{Name: exchange, Type: amqp.ExchangeDirect, Durable: true},
		},
	}
	for _, q := range []string{toNative, fromNative} {
		t.Queues = append(t.Queues, QueueDeclaration{Name: q, Durable: true, Arguments: args})
		t.Bindings = append(t.Bindings, Binding{Queue: q, Exchange: exchange, RoutingKey: q})
	}
	return t
}

// Validate checks that every binding refers to a declared exchange and queue
func (t Topology) Validate() error {
	exchanges := make(map[string]bool, len(t.Exchanges))
	for _, e := range t.Exchanges {
		if e.Name == "" {
			return fmt.Errorf("%w: exchange without a name", ErrInvalidTopology)
		}
		exchanges[e.Name] = true
	}
	queues := make(map[string]bool, len(t.Queues))
	for _, q := range t.Queues {
		if q.Name == "" {
			return fmt.Errorf("%w: queue without a name", ErrInvalidTopology)
		}
		queues[q.Name] = true
	}
	for _, b := range t.Bindings {
		if !exchanges[b.Exchange] {
			return fmt.Errorf("%w: binding to undeclared exchange %q", ErrInvalidTopology, b.Exchange)
		}
		if !queues[b.Queue] {
			return fmt.Errorf("%w: binding of undeclared queue %q", ErrInvalidTopology, b.Queue)
		}
	}
	return nil
}

// DeclareTopology declares t on a short-lived channel. Declarations are
// idempotent so both ends of the bridge may run it.
func DeclareTopology(ctx context.Context, manager *ConnectionManager, t Topology) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := manager.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	for _, e := range t.Exchanges {
		if err := ch.ExchangeDeclare(e.Name, e.Type, e.Durable, e.AutoDelete, false, false, e.Arguments); err != nil {
			return &TopologyError{Resource: "exchange", Name: e.Name, Err: err}
		}
	}
	for _, q := range t.Queues {
		if _, err := ch.QueueDeclare(q.Name, q.Durable, q.AutoDelete, q.Exclusive, false, q.Arguments); err != nil {
			return &TopologyError{Resource: "queue", Name: q.Name, Err: err}
		}
	}
	for _, b := range t.Bindings {
		if err := ch.QueueBind(b.Queue, b.RoutingKey, b.Exchange, false, b.Arguments); err != nil {
			return &TopologyError{Resource: "binding", Name: b.Queue + "->" + b.Exchange, Err: err}
		}
	}
	return nil
}
