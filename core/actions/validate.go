package actions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// validator checks raw invocation arguments against argument schemas.
// Compiled schemas are cached per schema instance.
type validator struct {
	mu       sync.Mutex
	compiled map[*jsonschema.Schema]*gojsonschema.Schema
}

func (v *validator) validate(action string, schema *jsonschema.Schema, rawArguments string) (json.RawMessage, error) {
	data := bytes.TrimSpace([]byte(rawArguments))
	if len(data) == 0 {
		// Models commonly send no arguments for argument-less functions
		data = []byte("{}")
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &MalformedArgumentsError{Action: action, Arguments: rawArguments, Err: err}
	}

	if schema == nil {
		return data, nil
	}

	compiled, err := v.compile(schema)
	if err != nil {
		return nil, &MalformedArgumentsError{
			Action:    action,
			Arguments: rawArguments,
			Err:       fmt.Errorf("invalid argument schema: %w", err),
		}
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &MalformedArgumentsError{Action: action, Arguments: rawArguments, Err: err}
	}
	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			violations = append(violations, resultErr.String())
		}
		return nil, &MalformedArgumentsError{Action: action, Arguments: rawArguments, Violations: violations}
	}

	return data, nil
}

func (v *validator) compile(schema *jsonschema.Schema) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if compiled, ok := v.compiled[schema]; ok {
		return compiled, nil
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var loader gojsonschema.JSONLoader
	var document map[string]any
	if err := json.Unmarshal(raw, &document); err == nil {
		// gojsonschema only knows drafts up to 7, the draft is implied
		delete(document, "$schema")
		delete(document, "$id")
		loader = gojsonschema.NewGoLoader(document)
	} else {
		loader = gojsonschema.NewBytesLoader(raw)
	}

	compiled, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	if v.compiled == nil {
		v.compiled = make(map[*jsonschema.Schema]*gojsonschema.Schema)
	}
	v.compiled[schema] = compiled
	return compiled, nil
}
