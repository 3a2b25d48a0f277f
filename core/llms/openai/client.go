// Package openai implements llms.ResponseGenerator on top of an OpenAI
// compatible chat completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/natlang-core/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// ErrRequestFailed is matched by every error caused by a non-OK response.
var ErrRequestFailed = errors.New("chat completion request failed")

// maxErrorBody limits how much of an error response is read.
const maxErrorBody = 64 << 10

type Client struct {
	apiKey              string
	model               string
	baseURL             string
	httpClient          *http.Client
	forceSingleFunction bool
}

type Option func(*Client)

// WithBaseURL points the client at another OpenAI compatible server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithForceSingleFunction makes the model call the function when exactly one
// schema is offered, instead of letting it choose.
func WithForceSingleFunction() Option {
	return func(c *Client) { c.forceSingleFunction = true }
}

func NewClient(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetResponse asks the model for the next message of the conversation.
//
// A reply without choices, or whose first choice has neither content nor a
// function call, is returned as a nil response.
func (c *Client) GetResponse(ctx context.Context, history []llms.Message, schemas []llms.FunctionSchema) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "create chat completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.messages", len(history)),
		attribute.Int("llm.functions", len(schemas)),
	)

	body, err := c.requestBody(history, schemas)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	responseBody, err := c.send(ctx, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	response, dropped := toResponse(*responseBody)
	if len(dropped) > 0 {
		logger.WarnContext(ctx, "model requested more than one function call, only the first is used",
			"used", response.FunctionCall.Name, "dropped", dropped)
	}
	span.SetAttributes(
		attribute.Bool("llm.response.has_content", response.HasContent()),
		attribute.Bool("llm.response.has_function_call", response.HasFunctionCall()),
	)
	return response, nil
}

func (c *Client) requestBody(history []llms.Message, schemas []llms.FunctionSchema) (requestBody, error) {
	messages, err := toChatMessages(history)
	if err != nil {
		return requestBody{}, err
	}

	body := requestBody{Model: c.model, Messages: messages}
	if len(schemas) == 0 {
		return body, nil
	}

	if body.Tools, err = toTools(schemas); err != nil {
		return requestBody{}, err
	}
	body.ToolChoice = "auto"
	if c.forceSingleFunction && len(schemas) == 1 {
		choice := namedToolChoice{Type: "function"}
		choice.Function.Name = schemas[0].Name
		body.ToolChoice = choice
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, body requestBody) (*responseBody, error) {
	requestBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(requestBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var responseBody responseBody
	if err := json.NewDecoder(resp.Body).Decode(&responseBody); err != nil {
		return nil, fmt.Errorf("error unmarshalling response body: %w", err)
	}
	return &responseBody, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return fmt.Errorf("%w: %s: %s", ErrRequestFailed, resp.Status, body.Error.Message)
	}
	if message := strings.TrimSpace(string(raw)); message != "" {
		return fmt.Errorf("%w: %s: %s", ErrRequestFailed, resp.Status, message)
	}
	return fmt.Errorf("%w: %s", ErrRequestFailed, resp.Status)
}
