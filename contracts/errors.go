package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout matches every *TimeoutError
	ErrTimeout = errors.New("invoke timeout")

	// ErrNative matches every *NativeError
	ErrNative = errors.New("native error")

	// ErrBridgeClosed is returned for calls issued on, or pending at, a closed bridge
	ErrBridgeClosed = errors.New("bridge closed")

	// ErrEmptyCommand is returned when invoking without a command name
	ErrEmptyCommand = errors.New("command cannot be empty")
)

// TimeoutError reports that no correlated response arrived in time
type TimeoutError struct {
	Command string
	ID      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("invoke timeout: %s (id=%s, after %v)", e.Command, e.ID, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// NativeError reports a response the native side classified as failure
type NativeError struct {
	Command string
	ID      string
	Code    int
	Message string
	Result  json.RawMessage
}

func (e *NativeError) Error() string {
	return e.Message
}

func (e *NativeError) Is(target error) bool {
	return target == ErrNative
}

// SendError reports that the transport refused an outbound envelope
type SendError struct {
	Command string
	ID      string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send %s (id=%s): %v", e.Command, e.ID, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
