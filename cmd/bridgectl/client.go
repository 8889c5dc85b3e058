package main

import (
	"github.com/glimte/nativebridge"
	rabbitmqTransport "github.com/glimte/nativebridge/transports/rabbitmq"
)

// newClient connects a front-end client configured from a.cfg
func (a *app) newClient() (*nativebridge.Client, error) {
	opts := []nativebridge.ClientOption{
		nativebridge.WithLogger(a.logger),
		nativebridge.WithDefaultTimeout(a.cfg.Bridge.DefaultTimeout),
		nativebridge.WithTransportOptions(a.transportOptions(rabbitmqTransport.RoleFront)...),
	}
	if b := a.cfg.Bridge.Breaker; b.Enabled {
		opts = append(opts, nativebridge.WithCircuitBreaker(b.FailureThreshold, b.OpenTimeout))
	}
	return nativebridge.NewClient(a.cfg.AMQP.URL, opts...)
}
