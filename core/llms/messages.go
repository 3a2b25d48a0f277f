package llms

import (
	"context"

	"github.com/invopop/jsonschema"
)

// Role describes who a message in the conversation is from
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one the conversation history accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is a single entry in the conversation history. Messages are
// replayed to the model in order on every call.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserMessage(content string) Message      { return Message{Role: RoleUser, Content: content} }
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }
func SystemMessage(content string) Message    { return Message{Role: RoleSystem, Content: content} }

// FunctionSchema is the invocable shape of an action as offered to the model.
type FunctionSchema struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// FunctionCall is a request from the model to run a named action.
type FunctionCall struct {
	Name string `json:"name"`
	// Arguments is the serialized (JSON) argument object as generated by
	// the model. It is validated against the schema before use.
	Arguments string `json:"arguments"`
}

// Response is a single reply from the model. It may carry content, a
// function call, both, or neither.
type Response struct {
	Content      *string       `json:"content,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// TextResponse creates a content-only response
func TextResponse(content string) *Response {
	return &Response{Content: &content}
}

// CallResponse creates a response that only requests a function call
func CallResponse(name, arguments string) *Response {
	return &Response{FunctionCall: &FunctionCall{Name: name, Arguments: arguments}}
}

func (r *Response) HasContent() bool {
	return r != nil && r.Content != nil
}

func (r *Response) HasFunctionCall() bool {
	return r != nil && r.FunctionCall != nil
}

// IsEmpty reports whether the response is absent or carries nothing.
func (r *Response) IsEmpty() bool {
	return !r.HasContent() && !r.HasFunctionCall()
}

// ResponseGenerator is the model call supplied by the host application.
//
// A nil response with a nil error means the model gave no answer. A non-nil
// error is treated as a hard failure of the call.
type ResponseGenerator interface {
	GetResponse(ctx context.Context, history []Message, schemas []FunctionSchema) (*Response, error)
}

// ResponseFunc allows an ordinary function to be used as a ResponseGenerator.
type ResponseFunc func(ctx context.Context, history []Message, schemas []FunctionSchema) (*Response, error)

func (f ResponseFunc) GetResponse(ctx context.Context, history []Message, schemas []FunctionSchema) (*Response, error) {
	return f(ctx, history, schemas)
}
