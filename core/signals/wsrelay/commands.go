package wsrelay

import (
	"context"
	"errors"
	"fmt"
	"slices"

	chat "github.com/koscakluka/natlang-core/core"
	"github.com/koscakluka/natlang-core/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrInvalidCommand   = errors.New("invalid command")
	ErrUnknownCommand   = errors.New("unknown command")
	// ErrCommandQueueFull is reported when a client sends commands faster than
	// they run.
	ErrCommandQueueFull = errors.New("command queue full")
)

type CommandType string

const (
	CommandSubmit       CommandType = "submit"
	CommandSystemPrompt CommandType = "system_prompt"
	CommandGiveContext  CommandType = "give_context"
	CommandClearHistory CommandType = "clear_history"
	CommandGetHistory   CommandType = "get_history"
	CommandCancelTurn   CommandType = "cancel_turn"
)

// Command is a single message sent by a client.
type Command struct {
	Type CommandType `json:"type"`
	// Prompt is the user prompt of a submit command.
	Prompt string `json:"prompt,omitempty"`
	// Schemas restricts a submit command to the named actions. Omitted means
	// every registered action, an empty list means none.
	Schemas *[]string `json:"schemas,omitempty"`
	// Content is the system message of system_prompt and give_context.
	Content      string `json:"content,omitempty"`
	WithResponse bool   `json:"with_response,omitempty"`
}

type commandError struct {
	Command CommandType `json:"command,omitempty"`
	Error   string      `json:"error"`
}

func (h *Handler) run(ctx context.Context, command Command) error {
	ctx, span := tracer.Start(ctx, "relay command")
	defer span.End()
	span.SetAttributes(attribute.String("command.type", string(command.Type)))

	if err := h.dispatch(ctx, command); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (h *Handler) dispatch(ctx context.Context, command Command) error {
	switch command.Type {
	case CommandSubmit:
		if command.Prompt == "" {
			return fmt.Errorf("%w: submit without prompt", ErrInvalidCommand)
		}
		var opts []chat.SubmitOption
		if command.Schemas != nil {
			schemas, err := h.selectSchemas(*command.Schemas)
			if err != nil {
				return err
			}
			opts = append(opts, chat.WithSchemas(schemas...))
		}
		return h.host.Submit(ctx, command.Prompt, opts...)

	case CommandSystemPrompt:
		if command.Content == "" {
			return fmt.Errorf("%w: system prompt without content", ErrInvalidCommand)
		}
		return h.host.SystemPrompt(ctx, command.Content, command.WithResponse)

	case CommandGiveContext:
		if command.Content == "" {
			return fmt.Errorf("%w: context without content", ErrInvalidCommand)
		}
		return h.host.GiveContext(ctx, command.Content)

	case CommandClearHistory:
		return h.host.ClearHistory(ctx)

	case CommandGetHistory:
		// The snapshot reaches the client as a history signal.
		h.host.History()

	case CommandCancelTurn:
		h.host.CancelTurn()

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command.Type)
	}
	return nil
}

func (h *Handler) selectSchemas(names []string) ([]llms.FunctionSchema, error) {
	available := h.host.Schemas()
	schemas := make([]llms.FunctionSchema, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(available, func(schema llms.FunctionSchema) bool { return schema.Name == name })
		if i == -1 {
			return nil, fmt.Errorf("%w: no action named %q", ErrInvalidCommand, name)
		}
		schemas = append(schemas, available[i])
	}
	return schemas, nil
}
