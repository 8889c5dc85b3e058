package reliability

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCircuitOpen  = errors.New("circuit breaker: circuit is open")
	ErrUnknownState = errors.New("circuit breaker: unknown state")
)

// CircuitBreakerError reports a call rejected by an open circuit
type CircuitBreakerError struct {
	Name             string
	State            State
	Failures         int
	FailureThreshold int
	LastFailure      time.Time
	NextRetry        time.Time
}

func (e *CircuitBreakerError) Error() string {
	retryIn := time.Until(e.NextRetry).Round(time.Millisecond)
	if retryIn < 0 {
		retryIn = 0
	}
	return fmt.Sprintf("circuit breaker %s %s: rejected (failures=%d/%d, retry in %v)",
		e.Name, e.State, e.Failures, e.FailureThreshold, retryIn)
}

func (e *CircuitBreakerError) Is(target error) bool {
	return target == ErrCircuitOpen
}
