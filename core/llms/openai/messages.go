package openai

import (
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/natlang-core/core/llms"
)

type requestBody struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []tool        `json:"tools,omitempty"`
	ToolChoice any           `json:"tool_choice,omitempty"`
}

type chatMessage struct {
	Role    llms.Role `json:"role"`
	Content string    `json:"content"`
}

type tool struct {
	Type     string   `json:"type"`
	Function function `json:"function"`
}

type function struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// namedToolChoice forces the model to call one specific function.
type namedToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type responseBody struct {
	Choices []responseChoice `json:"choices"`
}

type responseChoice struct {
	Message responseMessage `json:"message"`
}

type responseMessage struct {
	Content   *string    `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
	// FunctionCall is set by servers that still speak the deprecated
	// functions API.
	FunctionCall *functionCall `json:"function_call,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func toChatMessages(history []llms.Message) ([]chatMessage, error) {
	messages := []chatMessage{}
	if len(history) == 0 {
		return messages, nil
	}
	if err := copier.Copy(&messages, history); err != nil {
		return nil, fmt.Errorf("failed to convert history: %w", err)
	}
	return messages, nil
}

func toTools(schemas []llms.FunctionSchema) ([]tool, error) {
	tools := make([]tool, 0, len(schemas))
	for _, schema := range schemas {
		t := tool{Type: "function"}
		if err := copier.Copy(&t.Function, &schema); err != nil {
			return nil, fmt.Errorf("failed to convert schema %q: %w", schema.Name, err)
		}
		if t.Function.Parameters == nil {
			t.Function.Parameters = &jsonschema.Schema{Type: "object"}
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// toResponse maps the first choice to a response. Only the first function
// call is kept.
func toResponse(body responseBody) (*llms.Response, []string) {
	if len(body.Choices) == 0 {
		return nil, nil
	}
	message := body.Choices[0].Message

	response := &llms.Response{}
	if message.Content != nil && *message.Content != "" {
		content := *message.Content
		response.Content = &content
	}

	var calls []functionCall
	for _, call := range message.ToolCalls {
		calls = append(calls, call.Function)
	}
	if message.FunctionCall != nil {
		calls = append(calls, *message.FunctionCall)
	}

	var dropped []string
	for i, call := range calls {
		if i == 0 {
			response.FunctionCall = &llms.FunctionCall{Name: call.Name, Arguments: call.Arguments}
			continue
		}
		dropped = append(dropped, call.Name)
	}

	if response.IsEmpty() {
		return nil, dropped
	}
	return response, dropped
}
