// Package messaging defines the transport abstraction the bridge runs on.
//
// A Transport is one end of an asynchronous, unordered, best-effort channel
// that carries opaque JSON envelopes. The front-end bridge and the native
// host each hold one end: the bridge publishes requests and subscribes to
// responses and events, the host does the reverse.
//
// Implementations live under transports/: an in-memory pipe for tests and
// embedding, and RabbitMQ for out-of-process native contexts.
package messaging
