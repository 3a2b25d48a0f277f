package actions

import (
	"fmt"

	"github.com/koscakluka/natlang-core/core/llms"
)

// Registry is the fixed, ordered set of actions of a conversation. All
// actions are constructed when the registry is created.
type Registry struct {
	actions []Action
	byName  map[string]Action
}

// NewRegistry constructs every action from its factory, binding it to the
// given service. Names must be non-empty and unique.
func NewRegistry(service Service, factories ...Factory) (*Registry, error) {
	r := &Registry{byName: make(map[string]Action, len(factories))}
	for i, factory := range factories {
		if factory == nil {
			return nil, fmt.Errorf("%w: factory %d is nil", ErrInvalidAction, i)
		}

		action := factory(service)
		if action == nil {
			return nil, fmt.Errorf("%w: factory %d returned nil", ErrInvalidAction, i)
		}

		name := action.Descriptor().Name
		if name == "" {
			return nil, fmt.Errorf("%w: action %d has no name", ErrInvalidAction, i)
		}
		if _, ok := r.byName[name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAction, name)
		}

		r.actions = append(r.actions, action)
		r.byName[name] = action
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (Action, bool) {
	if r == nil {
		return nil, false
	}
	action, ok := r.byName[name]
	return action, ok
}

// Actions returns all actions in registration order.
func (r *Registry) Actions() []Action {
	if r == nil {
		return nil
	}
	actions := make([]Action, len(r.actions))
	copy(actions, r.actions)
	return actions
}

// Schemas returns the schemas of all actions the model may select, in
// registration order.
func (r *Registry) Schemas() []llms.FunctionSchema {
	if r == nil {
		return nil
	}

	var schemas []llms.FunctionSchema
	for _, action := range r.actions {
		descriptor := action.Descriptor()
		if descriptor.Schema == nil {
			continue
		}
		schemas = append(schemas, descriptor.FunctionSchema())
	}
	return schemas
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.actions)
}
