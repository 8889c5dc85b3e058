package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/glimte/nativebridge/bridge"
	"github.com/glimte/nativebridge/contracts"
	"github.com/glimte/nativebridge/internal/reliability"
	"github.com/glimte/nativebridge/messaging"
)

// TransportChecker reports whether a transport is connected
type TransportChecker struct {
	name      string
	transport messaging.Transport
}

// NewTransportChecker creates a transport connectivity checker
func NewTransportChecker(name string, transport messaging.Transport) *TransportChecker {
	if name == "" {
		name = "transport"
	}
	return &TransportChecker{name: name, transport: transport}
}

func (c *TransportChecker) Name() string {
	return c.name
}

func (c *TransportChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   map[string]interface{}{"connected": false},
	}

	if c.transport.IsConnected() {
		result.Status = StatusHealthy
		result.Message = "transport is connected"
		result.Details["connected"] = true
	} else {
		result.Status = StatusUnhealthy
		result.Message = "transport is not connected"
	}

	result.Duration = time.Since(start)
	return result
}

// Invoker issues bridge calls
type Invoker interface {
	Invoke(ctx context.Context, command string, args interface{}, opts ...bridge.CallOption) (json.RawMessage, error)
}

// PingChecker round-trips a command to the native side. A reply is
// healthy, a native failure degraded, and no reply unhealthy.
type PingChecker struct {
	invoker Invoker
	command string
	timeout time.Duration
}

// NewPingChecker creates a checker invoking command with timeout
func NewPingChecker(invoker Invoker, command string, timeout time.Duration) *PingChecker {
	if command == "" {
		command = "ping"
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &PingChecker{invoker: invoker, command: command, timeout: timeout}
}

func (c *PingChecker) Name() string {
	return "native_" + c.command
}

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   map[string]interface{}{"command": c.command},
	}

	_, err := c.invoker.Invoke(ctx, c.command, nil, bridge.WithTimeout(c.timeout))
	result.Duration = time.Since(start)
	result.Details["response_time_ms"] = result.Duration.Milliseconds()

	var nativeErr *contracts.NativeError
	switch {
	case err == nil:
		result.Status = StatusHealthy
		result.Message = "native side answered"
	case errors.As(err, &nativeErr):
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("native side answered with code %d", nativeErr.Code)
		result.Error = err.Error()
	case errors.Is(err, contracts.ErrTimeout):
		result.Status = StatusUnhealthy
		result.Message = "native side did not answer"
		result.Error = err.Error()
	default:
		result.Status = StatusUnhealthy
		result.Message = "call failed"
		result.Error = err.Error()
	}

	return result
}

// CircuitBreakerChecker reports the state of the send guard
type CircuitBreakerChecker struct {
	breaker *reliability.CircuitBreaker
}

// NewCircuitBreakerChecker creates a circuit breaker checker
func NewCircuitBreakerChecker(cb *reliability.CircuitBreaker) *CircuitBreakerChecker {
	return &CircuitBreakerChecker{breaker: cb}
}

func (c *CircuitBreakerChecker) Name() string {
	return "send_circuit"
}

func (c *CircuitBreakerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	stats := c.breaker.Stats()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]interface{}{
			"state":            stats.State.String(),
			"current_failures": stats.CurrentFailures,
			"rejected":         stats.TotalRejected,
		},
	}

	switch stats.State {
	case reliability.StateClosed:
		result.Status = StatusHealthy
	case reliability.StateHalfOpen:
		result.Status = StatusDegraded
	default:
		result.Status = StatusUnhealthy
	}
	result.Message = "circuit is " + stats.State.String()
	result.Duration = time.Since(start)
	return result
}

// RuntimeChecker flags goroutine growth, a common sign of leaked calls
type RuntimeChecker struct {
	warnGoroutines     int
	criticalGoroutines int
}

// NewRuntimeChecker creates a runtime checker with goroutine thresholds
func NewRuntimeChecker(warn, critical int) *RuntimeChecker {
	return &RuntimeChecker{warnGoroutines: warn, criticalGoroutines: critical}
}

func (c *RuntimeChecker) Name() string {
	return "runtime"
}

func (c *RuntimeChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	goroutines := runtime.NumGoroutine()

	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]interface{}{
			"memory_used_mb": float64(m.Sys) / 1024 / 1024,
			"gc_runs":        m.NumGC,
			"goroutines":     goroutines,
		},
	}

	switch {
	case c.criticalGoroutines > 0 && goroutines > c.criticalGoroutines:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("too many goroutines: %d", goroutines)
	case c.warnGoroutines > 0 && goroutines > c.warnGoroutines:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("high goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
		result.Message = "runtime is normal"
	}

	result.Duration = time.Since(start)
	return result
}
