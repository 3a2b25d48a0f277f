package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/natlang-core/core/llms"
)

func TestGetResponseSendsHistoryAndFunctions(t *testing.T) {
	var request map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &request); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	}))
	defer server.Close()

	client := NewClient("secret", "gpt-test", WithBaseURL(server.URL+"/"))
	response, err := client.GetResponse(context.Background(),
		[]llms.Message{llms.SystemMessage("be nice"), llms.UserMessage("hello")},
		[]llms.FunctionSchema{
			{Name: "remember_note", Description: "Remember a note", Parameters: &jsonschema.Schema{Type: "object"}},
			{Name: "get_time"},
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !response.HasContent() || *response.Content != "hi" {
		t.Fatalf("unexpected response %+v", response)
	}

	if request["model"] != "gpt-test" {
		t.Fatalf("unexpected model %v", request["model"])
	}
	messages, _ := request["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %v", request["messages"])
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "be nice" {
		t.Fatalf("unexpected first message %v", first)
	}
	tools, _ := request["tools"].([]any)
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %v", request["tools"])
	}
	secondTool, _ := tools[1].(map[string]any)
	secondFunction, _ := secondTool["function"].(map[string]any)
	if secondFunction["name"] != "get_time" || secondFunction["parameters"] == nil {
		t.Fatalf("expected schemaless function to get empty parameters, got %v", secondFunction)
	}
	if request["tool_choice"] != "auto" {
		t.Fatalf("expected automatic tool choice, got %v", request["tool_choice"])
	}
}

func TestGetResponseOmitsToolsWithoutSchemas(t *testing.T) {
	var request map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&request)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"hi"}}]}`)
	}))
	defer server.Close()

	client := NewClient("", "gpt-test", WithBaseURL(server.URL))
	if _, err := client.GetResponse(context.Background(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := request["tools"]; ok {
		t.Fatalf("expected no tools in request, got %v", request["tools"])
	}
	if _, ok := request["tool_choice"]; ok {
		t.Fatalf("expected no tool choice in request, got %v", request["tool_choice"])
	}
	if messages, ok := request["messages"].([]any); !ok || len(messages) != 0 {
		t.Fatalf("expected empty message list, got %v", request["messages"])
	}
}

func TestGetResponseForcesSingleFunction(t *testing.T) {
	var request map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&request)
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer server.Close()

	client := NewClient("", "gpt-test", WithBaseURL(server.URL), WithForceSingleFunction())
	if _, err := client.GetResponse(context.Background(), nil, []llms.FunctionSchema{{Name: "get_time"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	choice, _ := request["tool_choice"].(map[string]any)
	function, _ := choice["function"].(map[string]any)
	if choice["type"] != "function" || function["name"] != "get_time" {
		t.Fatalf("expected tool choice forcing get_time, got %v", request["tool_choice"])
	}
}

func TestGetResponseMapsReplies(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		content  *string
		function *llms.FunctionCall
	}{
		{
			name: "no choices",
			body: `{"choices":[]}`,
		},
		{
			name: "empty message",
			body: `{"choices":[{"message":{"content":null}}]}`,
		},
		{
			name:    "content",
			body:    `{"choices":[{"message":{"content":"hello"}}]}`,
			content: ptr("hello"),
		},
		{
			name:     "tool call",
			body:     `{"choices":[{"message":{"content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_time","arguments":"{}"}}]}}]}`,
			function: &llms.FunctionCall{Name: "get_time", Arguments: "{}"},
		},
		{
			name:     "content and several tool calls",
			body:     `{"choices":[{"message":{"content":"one moment","tool_calls":[{"function":{"name":"first","arguments":"{\"a\":1}"}},{"function":{"name":"second","arguments":"{}"}}]}}]}`,
			content:  ptr("one moment"),
			function: &llms.FunctionCall{Name: "first", Arguments: `{"a":1}`},
		},
		{
			name:     "deprecated function call",
			body:     `{"choices":[{"message":{"function_call":{"name":"get_time","arguments":""}}}]}`,
			function: &llms.FunctionCall{Name: "get_time"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, testCase.body)
			}))
			defer server.Close()

			response, err := NewClient("", "gpt-test", WithBaseURL(server.URL)).GetResponse(context.Background(), nil, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if testCase.content == nil && testCase.function == nil {
				if response != nil {
					t.Fatalf("expected no response, got %+v", response)
				}
				return
			}
			if got := response.HasContent(); got != (testCase.content != nil) {
				t.Fatalf("expected content %t, got %+v", testCase.content != nil, response)
			}
			if testCase.content != nil && *response.Content != *testCase.content {
				t.Fatalf("expected content %q, got %q", *testCase.content, *response.Content)
			}
			if got := response.HasFunctionCall(); got != (testCase.function != nil) {
				t.Fatalf("expected function call %t, got %+v", testCase.function != nil, response)
			}
			if testCase.function != nil && *response.FunctionCall != *testCase.function {
				t.Fatalf("expected function call %+v, got %+v", *testCase.function, *response.FunctionCall)
			}
		})
	}
}

func TestGetResponseReportsFailedRequests(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{name: "api error", status: http.StatusUnauthorized, body: `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`, expected: "Incorrect API key"},
		{name: "plain body", status: http.StatusBadGateway, body: "upstream down", expected: "upstream down"},
		{name: "empty body", status: http.StatusInternalServerError, expected: "500"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(testCase.status)
				_, _ = io.WriteString(w, testCase.body)
			}))
			defer server.Close()

			_, err := NewClient("", "gpt-test", WithBaseURL(server.URL)).GetResponse(context.Background(), nil, nil)
			if !errors.Is(err, ErrRequestFailed) {
				t.Fatalf("expected ErrRequestFailed, got %v", err)
			}
			if !strings.Contains(err.Error(), testCase.expected) {
				t.Fatalf("expected error to mention %q, got %v", testCase.expected, err)
			}
		})
	}
}

func TestGetResponseHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("", "gpt-test", WithBaseURL(server.URL)).GetResponse(ctx, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func ptr[T any](v T) *T { return &v }
