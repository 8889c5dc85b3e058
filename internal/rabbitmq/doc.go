// Package rabbitmq holds the AMQP plumbing behind the RabbitMQ transport.
//
//   - ConnectionManager owns the connection and re-dials it with backoff
//   - Publisher publishes on one confirm-mode channel, without retries
//   - Consumer consumes one queue and re-attaches after a reconnect
//   - BridgeTopology and DeclareTopology set up the exchange and queues
package rabbitmq
