package chat

import "errors"

var (
	ErrNoResponseGenerator = errors.New("no response generator configured")
	// ErrTurnInProgress is returned when a prompt is submitted while another
	// turn is still running and prompts are not queued.
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrTimeout is the cause of a model call that exceeded the response
	// timeout. The turn ends as if the model gave no answer.
	ErrTimeout = errors.New("model response timed out")
	// ErrModelCall wraps hard failures returned by the response generator.
	ErrModelCall = errors.New("model call failed")
	// ErrNoResponse marks a turn that ended without an answer. It is only
	// logged, never returned.
	ErrNoResponse = errors.New("no response from model")
)
