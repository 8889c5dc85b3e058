package config

import (
	"log/slog"
	"time"

	"github.com/glimte/nativebridge/internal/rabbitmq"
	rabbitmqTransport "github.com/glimte/nativebridge/transports/rabbitmq"
)

// dialTimeout bounds each broker dial made by the binaries
const dialTimeout = 10 * time.Second

// TransportOptions maps the amqp section onto RabbitMQ transport options
// for role
func (c AMQPConfig) TransportOptions(role rabbitmqTransport.Role, logger *slog.Logger) []rabbitmqTransport.TransportOption {
	return []rabbitmqTransport.TransportOption{
		rabbitmqTransport.WithRole(role),
		rabbitmqTransport.WithExchange(c.Exchange),
		rabbitmqTransport.WithQueues(c.ToNativeQueue, c.FromNativeQueue),
		rabbitmqTransport.WithMessageTTL(c.MessageTTL),
		rabbitmqTransport.WithPrefetch(c.Prefetch),
		rabbitmqTransport.WithLogger(logger),
		rabbitmqTransport.WithConnectionOptions(
			rabbitmq.WithReconnectDelay(c.ReconnectDelay),
			rabbitmq.WithDialTimeout(dialTimeout),
		),
	}
}
