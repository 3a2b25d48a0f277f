package actions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/koscakluka/natlang-core/core/llms"
	"github.com/koscakluka/natlang-core/core/signals"
)

type noteArguments struct {
	Note string `json:"note" jsonschema:"description=The note to remember"`
}

func TestReflectSchemaDescribesArguments(t *testing.T) {
	schema := ReflectSchema[noteArguments]()

	if schema.Type != "object" {
		t.Fatalf("expected object schema, got %q", schema.Type)
	}
	if schema.Version != "" {
		t.Fatalf("expected schema version to be stripped, got %q", schema.Version)
	}
	property, ok := schema.Properties.Get("note")
	if !ok {
		t.Fatalf("expected note property in schema")
	}
	if property.Type != "string" || property.Description != "The note to remember" {
		t.Fatalf("unexpected note property: %+v", property)
	}
	if !slices.Contains(schema.Required, "note") {
		t.Fatalf("expected note to be required, got %v", schema.Required)
	}
}

func TestNewRegistryRejectsInvalidActions(t *testing.T) {
	testCases := []struct {
		name      string
		factories []Factory
		expected  error
	}{
		{name: "nil factory", factories: []Factory{nil}, expected: ErrInvalidAction},
		{name: "nil action", factories: []Factory{func(Service) Action { return nil }}, expected: ErrInvalidAction},
		{name: "empty name", factories: []Factory{echoAction("")}, expected: ErrInvalidAction},
		{name: "duplicate name", factories: []Factory{echoAction("a"), echoAction("a")}, expected: ErrDuplicateAction},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := NewRegistry(nil, testCase.factories...)
			if !errors.Is(err, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, err)
			}
		})
	}
}

func TestRegistrySchemasSkipUnschemedActions(t *testing.T) {
	registry, err := NewRegistry(nil,
		echoAction("b"),
		NewUnschemed("hidden", "not offered", func(context.Context, Service) (string, error) { return "", nil }),
		echoAction("a"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var names []string
	for _, schema := range registry.Schemas() {
		names = append(names, schema.Name)
	}
	if !slices.Equal(names, []string{"b", "a"}) {
		t.Fatalf("expected schemas in registration order without hidden action, got %v", names)
	}
	if registry.Len() != 3 {
		t.Fatalf("expected 3 registered actions, got %d", registry.Len())
	}
	if _, ok := registry.Lookup("hidden"); !ok {
		t.Fatalf("expected hidden action to be registered")
	}
}

func TestResolveIsScopedToActiveSchemas(t *testing.T) {
	runtime := newTestRuntime(t, echoAction("a"), echoAction("b"))
	active := []llms.FunctionSchema{schemaOf(t, runtime, "a")}

	if _, _, ok := runtime.Resolve(active, &llms.FunctionCall{Name: "b"}); ok {
		t.Fatalf("expected action b not to resolve when only a is active")
	}

	action, schema, ok := runtime.Resolve(active, &llms.FunctionCall{Name: "a"})
	if !ok || action.Descriptor().Name != "a" || schema.Name != "a" {
		t.Fatalf("expected action a to resolve, got %v %+v %t", action, schema, ok)
	}
}

func TestResolveFallsBackForUnknownCalls(t *testing.T) {
	runtime := newTestRuntime(t,
		echoAction("a"),
		NewUnschemed("hidden", "", func(context.Context, Service) (string, error) { return "", nil }),
	)

	testCases := []struct {
		name   string
		active []llms.FunctionSchema
		call   *llms.FunctionCall
	}{
		{name: "nil call", active: runtime.Registry().Schemas(), call: nil},
		{name: "empty active set", active: nil, call: &llms.FunctionCall{Name: "a"}},
		{name: "not registered", active: []llms.FunctionSchema{{Name: "ghost"}}, call: &llms.FunctionCall{Name: "ghost"}},
		{name: "registered without schema", active: []llms.FunctionSchema{{Name: "hidden"}}, call: &llms.FunctionCall{Name: "hidden"}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, _, ok := runtime.Resolve(testCase.active, testCase.call); ok {
				t.Fatalf("expected call not to resolve")
			}
		})
	}
}

func TestResolveUsesRegistrySchemaWhenOverrideHasNone(t *testing.T) {
	runtime := newTestRuntime(t, echoAction("a"))

	_, schema, ok := runtime.Resolve([]llms.FunctionSchema{{Name: "a"}}, &llms.FunctionCall{Name: "a"})
	if !ok {
		t.Fatalf("expected action to resolve")
	}
	if schema.Parameters == nil {
		t.Fatalf("expected registry schema to be used for validation")
	}
}

func TestInvokeDecodesArguments(t *testing.T) {
	runtime := newTestRuntime(t, echoAction("echo"))
	action, schema, _ := runtime.Resolve(runtime.Registry().Schemas(), &llms.FunctionCall{Name: "echo"})

	result, err := runtime.Invoke(context.Background(), action, schema, `{"note":"buy milk"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "noted: buy milk" {
		t.Fatalf("unexpected result %q", result)
	}
}

func TestInvokeRejectsMalformedArguments(t *testing.T) {
	runtime := newTestRuntime(t, echoAction("echo"))
	action, schema, _ := runtime.Resolve(runtime.Registry().Schemas(), &llms.FunctionCall{Name: "echo"})

	testCases := []struct {
		name           string
		arguments      string
		wantViolations bool
	}{
		{name: "not json", arguments: `{"note":`, wantViolations: false},
		{name: "missing required", arguments: `{}`, wantViolations: true},
		{name: "wrong type", arguments: `{"note": 5}`, wantViolations: true},
		{name: "unexpected property", arguments: `{"note":"a","extra":true}`, wantViolations: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := runtime.Invoke(context.Background(), action, schema, testCase.arguments)
			if !errors.Is(err, ErrMalformedArguments) {
				t.Fatalf("expected ErrMalformedArguments, got %v", err)
			}

			var malformed *MalformedArgumentsError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedArgumentsError, got %T", err)
			}
			if got := len(malformed.Violations) > 0; got != testCase.wantViolations {
				t.Fatalf("expected violations %t, got %v", testCase.wantViolations, malformed.Violations)
			}
		})
	}
}

func TestInvokeAcceptsEmptyArgumentsForArgumentlessActions(t *testing.T) {
	called := false
	runtime := newTestRuntime(t, New("ping", "", func(context.Context, Service, struct{}) (string, error) {
		called = true
		return "pong", nil
	}))
	action, schema, _ := runtime.Resolve(runtime.Registry().Schemas(), &llms.FunctionCall{Name: "ping"})

	result, err := runtime.Invoke(context.Background(), action, schema, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called || result != "pong" {
		t.Fatalf("expected ping to run and return pong, got %q", result)
	}
}

func TestInvokeWrapsActionFailures(t *testing.T) {
	actionErr := errors.New("database offline")
	runtime := newTestRuntime(t,
		New("fail", "", func(context.Context, Service, struct{}) (string, error) { return "", actionErr }),
		New("explode", "", func(context.Context, Service, struct{}) (string, error) { panic("boom") }),
	)
	schemas := runtime.Registry().Schemas()

	action, schema, _ := runtime.Resolve(schemas, &llms.FunctionCall{Name: "fail"})
	_, err := runtime.Invoke(context.Background(), action, schema, "{}")
	if !errors.Is(err, ErrActionExecution) || !errors.Is(err, actionErr) {
		t.Fatalf("expected execution error wrapping action error, got %v", err)
	}

	action, schema, _ = runtime.Resolve(schemas, &llms.FunctionCall{Name: "explode"})
	_, err = runtime.Invoke(context.Background(), action, schema, "{}")
	var execution *ExecutionError
	if !errors.As(err, &execution) {
		t.Fatalf("expected ExecutionError for panic, got %v", err)
	}
	if execution.Panic != "boom" {
		t.Fatalf("expected recovered panic value boom, got %v", execution.Panic)
	}
}

func TestNestedActionsCallThrough(t *testing.T) {
	service := &runtimeService{}
	registry, err := NewRegistry(service,
		NewUnschemed("list_notes", "", func(context.Context, Service) (string, error) {
			return "milk, eggs", nil
		}),
		New("recall", "", func(ctx context.Context, service Service, _ struct{}) (string, error) {
			notes, err := service.RunAction(ctx, "list_notes", nil)
			if err != nil {
				return "", err
			}
			return "You noted: " + notes, nil
		}),
		New("broken", "", func(ctx context.Context, service Service, _ struct{}) (string, error) {
			return service.RunAction(ctx, "missing", nil)
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	service.runtime = NewRuntime(registry)

	action, schema, ok := service.runtime.Resolve(registry.Schemas(), &llms.FunctionCall{Name: "recall"})
	if !ok {
		t.Fatalf("expected recall to resolve")
	}
	result, err := service.runtime.Invoke(context.Background(), action, schema, "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "You noted: milk, eggs" {
		t.Fatalf("unexpected nested result %q", result)
	}

	action, schema, _ = service.runtime.Resolve(registry.Schemas(), &llms.FunctionCall{Name: "broken"})
	_, err = service.runtime.Invoke(context.Background(), action, schema, "{}")
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected nested unknown action error, got %v", err)
	}
}

func TestRunEncodesData(t *testing.T) {
	runtime := newTestRuntime(t, echoAction("echo"))

	result, err := runtime.Run(context.Background(), "echo", noteArguments{Note: "call mom"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "noted: call mom" {
		t.Fatalf("unexpected result %q", result)
	}

	_, err = runtime.Run(context.Background(), "echo", make(chan int))
	if !errors.Is(err, ErrMalformedArguments) {
		t.Fatalf("expected unencodable data to be malformed, got %v", err)
	}
}

func echoAction(name string) Factory {
	return New(name, "Remember a note", func(_ context.Context, _ Service, data noteArguments) (string, error) {
		return fmt.Sprintf("noted: %s", data.Note), nil
	})
}

func newTestRuntime(t *testing.T, factories ...Factory) *Runtime {
	t.Helper()

	registry, err := NewRegistry(nil, factories...)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	return NewRuntime(registry)
}

func schemaOf(t *testing.T, runtime *Runtime, name string) llms.FunctionSchema {
	t.Helper()

	action, ok := runtime.Registry().Lookup(name)
	if !ok {
		t.Fatalf("action %q not registered", name)
	}
	return action.Descriptor().FunctionSchema()
}

type runtimeService struct {
	runtime *Runtime
}

func (s *runtimeService) Render(signals.Component) {}
func (s *runtimeService) LockPrompt()              {}
func (s *runtimeService) UnlockPrompt()            {}
func (s *runtimeService) GiveContext(string)       {}
func (s *runtimeService) History() []llms.Message  { return nil }

func (s *runtimeService) RunAction(ctx context.Context, name string, data any) (string, error) {
	return s.runtime.Run(ctx, name, data)
}
