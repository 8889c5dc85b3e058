package host

import (
	"errors"
	"fmt"

	"github.com/glimte/nativebridge/contracts"
)

// ErrUnknownCommand is reported for commands without a registered handler
var ErrUnknownCommand = errors.New("unknown command")

// CommandError carries the status code a failed command answers with
type CommandError struct {
	Code    int
	Message string
	Err     error
}

// NewCommandError creates a command error with code and message
func NewCommandError(code int, message string) *CommandError {
	return &CommandError{Code: code, Message: message}
}

// BadRequest reports invalid command arguments
func BadRequest(format string, args ...interface{}) *CommandError {
	return NewCommandError(contracts.CodeBadRequest, fmt.Sprintf(format, args...))
}

func (e *CommandError) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// failureFor maps a handler error to the code and message sent back
func failureFor(err error) (int, string) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code, cmdErr.Error()
	}
	if errors.Is(err, ErrUnknownCommand) {
		return contracts.CodeUnknownCommand, err.Error()
	}
	return contracts.CodeInternal, err.Error()
}
