// Package actions defines the capabilities a model may invoke during a
// conversation and the runtime that resolves and executes them.
package actions

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/natlang-core/core/llms"
	"github.com/koscakluka/natlang-core/core/signals"
)

// Service is the conversation handle given to every action at construction.
type Service interface {
	// Render asks the presentation layer to render a component.
	Render(component signals.Component)
	// LockPrompt stops the presentation layer from accepting new prompts
	// until UnlockPrompt is called.
	LockPrompt()
	UnlockPrompt()
	// GiveContext adds a system message to history without calling the model.
	GiveContext(content string)
	History() []llms.Message
	// RunAction runs another registered action by name as part of the
	// current action. The result is returned to the caller only.
	RunAction(ctx context.Context, name string, data any) (string, error)
}

// Descriptor is the static description of an action.
type Descriptor struct {
	Name        string
	Description string
	// Schema describes the argument object. Actions without a schema are
	// never offered to the model but can still be run by other actions.
	Schema *jsonschema.Schema
}

// FunctionSchema returns the descriptor in the shape offered to the model.
func (d Descriptor) FunctionSchema() llms.FunctionSchema {
	return llms.FunctionSchema{Name: d.Name, Description: d.Description, Parameters: d.Schema}
}

// Action is a single capability. Run receives the raw JSON arguments and
// returns a message that is fed back into the conversation as a system
// message; an empty result adds nothing.
type Action interface {
	Descriptor() Descriptor
	Run(ctx context.Context, data json.RawMessage) (string, error)
}

// Factory constructs an action bound to a conversation.
type Factory func(service Service) Action

// New creates a factory for an action whose arguments are decoded into T.
// The argument schema is reflected from T.
func New[T any](name, description string, run func(ctx context.Context, service Service, data T) (string, error)) Factory {
	schema := ReflectSchema[T]()
	return func(service Service) Action {
		return &typedAction[T]{
			descriptor: Descriptor{Name: name, Description: description, Schema: schema},
			service:    service,
			run:        run,
		}
	}
}

// NewUnschemed creates a factory for an action that takes no arguments and is
// never offered to the model.
func NewUnschemed(name, description string, run func(ctx context.Context, service Service) (string, error)) Factory {
	return func(service Service) Action {
		return &unschemedAction{
			descriptor: Descriptor{Name: name, Description: description},
			service:    service,
			run:        run,
		}
	}
}

// ReflectSchema builds a self-contained argument schema for T.
func ReflectSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true, Anonymous: true}
	schema := reflector.ReflectFromType(reflect.TypeFor[T]())
	schema.Version = ""
	return schema
}

type typedAction[T any] struct {
	descriptor Descriptor
	service    Service
	run        func(ctx context.Context, service Service, data T) (string, error)
}

func (a *typedAction[T]) Descriptor() Descriptor { return a.descriptor }

func (a *typedAction[T]) Run(ctx context.Context, data json.RawMessage) (string, error) {
	var decoded T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &decoded); err != nil {
			return "", &MalformedArgumentsError{Action: a.descriptor.Name, Arguments: string(data), Err: err}
		}
	}
	return a.run(ctx, a.service, decoded)
}

type unschemedAction struct {
	descriptor Descriptor
	service    Service
	run        func(ctx context.Context, service Service) (string, error)
}

func (a *unschemedAction) Descriptor() Descriptor { return a.descriptor }

func (a *unschemedAction) Run(ctx context.Context, _ json.RawMessage) (string, error) {
	return a.run(ctx, a.service)
}
