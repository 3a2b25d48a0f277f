package chat

import (
	"time"

	"github.com/koscakluka/natlang-core/core/actions"
	"github.com/koscakluka/natlang-core/core/llms"
	"github.com/koscakluka/natlang-core/core/signals"
)

// DefaultResponseTimeout bounds a single model call.
const DefaultResponseTimeout = 40 * time.Second

type Option func(*Conversation)

// WithActions registers the actions the model may invoke. Actions are
// constructed once, when the conversation is created.
func WithActions(factories ...actions.Factory) Option {
	return func(c *Conversation) { c.factories = append(c.factories, factories...) }
}

// WithResponseTimeout sets how long a model call may take before the turn
// ends without an answer. Zero disables the timeout.
func WithResponseTimeout(timeout time.Duration) Option {
	return func(c *Conversation) { c.responseTimeout = max(timeout, 0) }
}

// WithQueuedPrompts makes prompts submitted during a running turn wait for it
// to finish instead of being rejected with ErrTurnInProgress.
func WithQueuedPrompts() Option {
	return func(c *Conversation) { c.queuePrompts = true }
}

// WithPrepend asks the presentation layer to render new messages at the top.
func WithPrepend() Option {
	return func(c *Conversation) { c.prepend = true }
}

// WithActionFollowUp makes the conversation ask the model once more after an
// action added its result to history, rendering the reply.
func WithActionFollowUp() Option {
	return func(c *Conversation) { c.actionFollowUp = true }
}

// WithSignals uses an existing bus instead of creating a new one. The bus must
// not be shared with another conversation.
func WithSignals(bus *signals.Bus) Option {
	return func(c *Conversation) {
		if bus != nil {
			c.signals = bus
		}
	}
}

type SubmitOption func(*submitOptions)

type submitOptions struct {
	schemas         []llms.FunctionSchema
	overrideSchemas bool
}

// WithSchemas offers exactly the given schemas to the model for this prompt
// instead of every registered action. An empty list offers none.
func WithSchemas(schemas ...llms.FunctionSchema) SubmitOption {
	return func(o *submitOptions) {
		o.schemas = schemas
		o.overrideSchemas = true
	}
}
