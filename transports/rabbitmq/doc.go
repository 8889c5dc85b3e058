// Package rabbitmq carries the bridge over a RabbitMQ broker.
//
// Both sides share one direct exchange and two queues, one per direction.
// WithRole picks which queue a transport publishes to and which it
// consumes, so a front-end and a native host can run as separate
// processes.
package rabbitmq
