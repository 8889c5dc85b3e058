// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nativebridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/nativebridge/bridge"
	"github.com/glimte/nativebridge/internal/rabbitmq"
	"github.com/glimte/nativebridge/internal/reliability"
	"github.com/glimte/nativebridge/messaging"
	"github.com/glimte/nativebridge/monitor"
	rabbitmqTransport "github.com/glimte/nativebridge/transports/rabbitmq"
)

// Client is the front-end entry point: a bridge over a transport, with
// metrics and health checks attached
type Client struct {
	transport messaging.Transport
	bridge    *bridge.Bridge
	metrics   *monitor.BridgeMetrics
	breaker   *reliability.CircuitBreaker
	health    *monitor.Registry
	logger    *slog.Logger
}

// NewClient connects to the broker at url as the front-end side
func NewClient(url string, options ...ClientOption) (*Client, error) {
	cfg := newClientConfig(options...)

	transportOpts := append([]rabbitmqTransport.TransportOption{
		rabbitmqTransport.WithRole(rabbitmqTransport.RoleFront),
		rabbitmqTransport.WithLogger(cfg.logger),
		rabbitmqTransport.WithConnectionOptions(rabbitmq.WithLogger(cfg.logger)),
	}, cfg.transportOptions...)

	transport, err := rabbitmqTransport.NewTransport(url, transportOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	client, err := newClient(transport, cfg)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return client, nil
}

// NewClientWithTransport builds a client over an existing transport. The
// client takes ownership and closes it on Close.
func NewClientWithTransport(transport messaging.Transport, options ...ClientOption) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	return newClient(transport, newClientConfig(options...))
}

func newClient(transport messaging.Transport, cfg *clientConfig) (*Client, error) {
	c := &Client{
		transport: transport,
		metrics:   monitor.NewBridgeMetrics(),
		health:    monitor.NewRegistry(),
		logger:    cfg.logger,
	}

	bridgeOpts := []bridge.BridgeOption{
		bridge.WithLogger(cfg.logger),
		bridge.WithMetrics(c.metrics),
	}
	if cfg.defaultTimeout > 0 {
		bridgeOpts = append(bridgeOpts, bridge.WithDefaultTimeout(cfg.defaultTimeout))
	}
	if cfg.breakerThreshold > 0 {
		c.breaker = reliability.NewCircuitBreaker(
			reliability.WithFailureThreshold(cfg.breakerThreshold),
			reliability.WithOpenTimeout(cfg.breakerOpenTimeout),
			reliability.WithStateChangeFunc(func(name string, from, to reliability.State, reason string) {
				cfg.logger.Warn("send circuit changed state", "from", from.String(), "to", to.String(), "reason", reason)
			}),
		)
		bridgeOpts = append(bridgeOpts, bridge.WithBridgeCircuitBreaker(c.breaker))
	}

	b, err := bridge.NewBridge(transport, bridgeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge: %w", err)
	}
	c.bridge = b

	c.health.Register(monitor.NewTransportChecker("transport", transport))
	if cfg.pingCommand != "" {
		c.health.Register(monitor.NewPingChecker(b, cfg.pingCommand, cfg.pingTimeout))
	}
	if c.breaker != nil {
		c.health.Register(monitor.NewCircuitBreakerChecker(c.breaker))
	}

	return c, nil
}

// Invoke calls command on the native side and waits for its result
func (c *Client) Invoke(ctx context.Context, command string, args interface{}, opts ...bridge.CallOption) (json.RawMessage, error) {
	return c.bridge.Invoke(ctx, command, args, opts...)
}

// On subscribes handler to a native event and returns its unsubscribe function
func (c *Client) On(event string, handler bridge.EventHandler) func() {
	return c.bridge.On(event, handler)
}

// Bridge returns the underlying bridge
func (c *Client) Bridge() *bridge.Bridge {
	return c.bridge
}

// Transport returns the underlying transport
func (c *Client) Transport() messaging.Transport {
	return c.transport
}

// Metrics returns a snapshot of the bridge metrics
func (c *Client) Metrics() monitor.MetricsSummary {
	return c.metrics.Summary()
}

// HealthRegistry returns the registry so callers can add their own checks
func (c *Client) HealthRegistry() *monitor.Registry {
	return c.health
}

// Health runs every registered check
func (c *Client) Health(ctx context.Context) monitor.OverallHealth {
	return c.health.Check(ctx)
}

// Close fails pending calls and closes the transport
func (c *Client) Close() error {
	if c.bridge != nil {
		if err := c.bridge.Close(); err != nil {
			c.logger.Warn("bridge close failed", "error", err)
		}
	}
	if c.transport != nil {
		return c.transport.Close()
	}
	return nil
}

// clientConfig holds client configuration
type clientConfig struct {
	logger             *slog.Logger
	defaultTimeout     time.Duration
	breakerThreshold   int
	breakerOpenTimeout time.Duration
	pingCommand        string
	pingTimeout        time.Duration
	transportOptions   []rabbitmqTransport.TransportOption
}

func newClientConfig(options ...ClientOption) *clientConfig {
	cfg := &clientConfig{
		logger:      slog.Default(),
		pingCommand: "ping",
		pingTimeout: time.Second,
	}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithDefaultTimeout sets the timeout for calls issued without one
func WithDefaultTimeout(timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.defaultTimeout = timeout
	}
}

// WithCircuitBreaker fails calls fast after threshold consecutive send
// failures, for openTimeout
func WithCircuitBreaker(threshold int, openTimeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.breakerThreshold = threshold
		cfg.breakerOpenTimeout = openTimeout
	}
}

// WithHealthPing sets the command the health check invokes. An empty
// command disables the check.
func WithHealthPing(command string, timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.pingCommand = command
		cfg.pingTimeout = timeout
	}
}

// WithTransportOptions passes options to the RabbitMQ transport
func WithTransportOptions(opts ...rabbitmqTransport.TransportOption) ClientOption {
	return func(cfg *clientConfig) {
		cfg.transportOptions = append(cfg.transportOptions, opts...)
	}
}
