package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/koscakluka/natlang-core/core/llms"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Runtime resolves model invocations to registered actions and runs them.
type Runtime struct {
	registry  *Registry
	validator validator
}

func NewRuntime(registry *Registry) *Runtime {
	return &Runtime{registry: registry}
}

func (r *Runtime) Registry() *Registry { return r.registry }

// Resolve finds the action a function call refers to. Only schemas in the
// active set are eligible, so the model cannot invoke an action it was not
// offered. The returned schema is the one the arguments must satisfy.
func (r *Runtime) Resolve(active []llms.FunctionSchema, call *llms.FunctionCall) (Action, llms.FunctionSchema, bool) {
	if r == nil || call == nil {
		return nil, llms.FunctionSchema{}, false
	}

	i := slices.IndexFunc(active, func(schema llms.FunctionSchema) bool {
		return schema.Name == call.Name
	})
	if i == -1 {
		return nil, llms.FunctionSchema{}, false
	}

	action, ok := r.registry.Lookup(call.Name)
	if !ok || action.Descriptor().Schema == nil {
		return nil, llms.FunctionSchema{}, false
	}

	schema := active[i]
	if schema.Parameters == nil {
		schema.Parameters = action.Descriptor().Schema
	}
	return action, schema, true
}

// Invoke validates the raw arguments against the schema and runs the action.
// A panicking action is reported as an ExecutionError.
func (r *Runtime) Invoke(ctx context.Context, action Action, schema llms.FunctionSchema, rawArguments string) (string, error) {
	name := action.Descriptor().Name

	ctx, span := tracer.Start(ctx, "execute action")
	defer span.End()
	span.SetAttributes(attribute.String("action.name", name))

	data, err := r.validator.validate(name, schema.Parameters, rawArguments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	result, err := execute(ctx, action, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.Bool("action.has_result", result != ""))
	return result, nil
}

// Run runs a registered action by name on behalf of another action. Any
// registered action can be run this way, including ones without a schema.
func (r *Runtime) Run(ctx context.Context, name string, data any) (string, error) {
	action, ok := r.registry.Lookup(name)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownAction, name)
		logger.WarnContext(ctx, "nested action not registered", "action", name)
		return "", err
	}

	rawArguments, err := marshalData(data)
	if err != nil {
		return "", &MalformedArgumentsError{Action: name, Err: err}
	}

	return r.Invoke(ctx, action, action.Descriptor().FunctionSchema(), rawArguments)
}

func execute(ctx context.Context, action Action, data json.RawMessage) (result string, err error) {
	name := action.Descriptor().Name

	var catcher panics.Catcher
	catcher.Try(func() { result, err = action.Run(ctx, data) })
	if recovered := catcher.Recovered(); recovered != nil {
		logger.ErrorContext(ctx, "action panicked", "action", name, "panic", recovered.Value)
		return "", &ExecutionError{Action: name, Err: recovered.AsError(), Panic: recovered.Value}
	}

	if err != nil {
		var malformed *MalformedArgumentsError
		var execution *ExecutionError
		if errors.As(err, &malformed) || errors.As(err, &execution) {
			return "", err
		}
		return "", &ExecutionError{Action: name, Err: err}
	}

	return result, nil
}

func marshalData(data any) (string, error) {
	switch data := data.(type) {
	case nil:
		return "", nil
	case string:
		return data, nil
	case json.RawMessage:
		return string(data), nil
	case []byte:
		return string(data), nil
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("failed to encode action data: %w", err)
		}
		return string(encoded), nil
	}
}
