package bridge

import "time"

// Outcome labels how a call completed
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeNativeError Outcome = "native_error"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeSendError   Outcome = "send_error"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeClosed      Outcome = "closed"
)

// Reasons an inbound message is dropped by the dispatcher
const (
	DropEmpty        = "empty"
	DropUnrecognized = "unrecognized"
	DropUnknownID    = "unknown_id"
	DropNoSubscriber = "no_subscriber"
	DropClosed       = "closed"
)

// MetricsCollector receives bridge activity
type MetricsCollector interface {
	// RecordCall records an issued call
	RecordCall(command string)

	// RecordCompletion records how and how fast a call completed
	RecordCompletion(command string, outcome Outcome, duration time.Duration)

	// RecordEvent records an event fanned out to handlers
	RecordEvent(event string, handlers int)

	// RecordHandlerFailure records an isolated subscriber failure
	RecordHandlerFailure(event string)

	// RecordDropped records an inbound message that was ignored
	RecordDropped(reason string)
}

// NoOpMetricsCollector is a no-op implementation of MetricsCollector
type NoOpMetricsCollector struct{}

// RecordCall does nothing
func (NoOpMetricsCollector) RecordCall(command string) {}

// RecordCompletion does nothing
func (NoOpMetricsCollector) RecordCompletion(command string, outcome Outcome, duration time.Duration) {
}

// RecordEvent does nothing
func (NoOpMetricsCollector) RecordEvent(event string, handlers int) {}

// RecordHandlerFailure does nothing
func (NoOpMetricsCollector) RecordHandlerFailure(event string) {}

// RecordDropped does nothing
func (NoOpMetricsCollector) RecordDropped(reason string) {}
