package actions

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownAction is returned when a name does not match any action
	// that may be run in the current context.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMalformedArguments is matched by every MalformedArgumentsError.
	ErrMalformedArguments = errors.New("malformed action arguments")
	// ErrActionExecution is matched by every ExecutionError.
	ErrActionExecution = errors.New("action execution failed")

	ErrInvalidAction   = errors.New("invalid action")
	ErrDuplicateAction = errors.New("duplicate action name")
)

// MalformedArgumentsError is returned when the arguments of an invocation
// cannot be parsed or do not match the action's schema. It is never retried.
type MalformedArgumentsError struct {
	Action    string
	Arguments string
	// Violations lists schema violations, empty when the arguments were not
	// valid JSON at all.
	Violations []string
	Err        error
}

func (e *MalformedArgumentsError) Error() string {
	var reason string
	switch {
	case len(e.Violations) > 0:
		reason = strings.Join(e.Violations, "; ")
	case e.Err != nil:
		reason = e.Err.Error()
	default:
		reason = "unknown reason"
	}
	return fmt.Sprintf("malformed arguments for action %q: %s", e.Action, reason)
}

func (e *MalformedArgumentsError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedArguments}
	}
	return []error{ErrMalformedArguments, e.Err}
}

// ExecutionError is returned when an action's own logic fails or panics.
type ExecutionError struct {
	Action string
	Err    error
	// Panic holds the recovered value when the action panicked.
	Panic any
}

func (e *ExecutionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("action %q panicked: %v", e.Action, e.Panic)
	}
	return fmt.Sprintf("action %q failed: %v", e.Action, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrActionExecution}
	}
	return []error{ErrActionExecution, e.Err}
}
