package signals

import "github.com/koscakluka/natlang-core/core/llms"

const (
	// KindPromptSubmitted identifies an admitted user prompt.
	KindPromptSubmitted Kind = "prompt.submitted"
	// KindContextAdded identifies context silently added to history.
	KindContextAdded Kind = "context.added"
	// KindSystemPromptAdded identifies a system prompt added to history.
	KindSystemPromptAdded Kind = "system_prompt.added"
	// KindPromptLockChanged identifies a change in prompt admission.
	KindPromptLockChanged Kind = "prompt_lock.changed"
)

// PromptSubmitted carries a user prompt and the schemas offered with it.
type PromptSubmitted struct {
	Base
	TurnID  string                `json:"turn_id"`
	Prompt  string                `json:"prompt"`
	Schemas []llms.FunctionSchema `json:"schemas,omitempty"`
}

// NewPromptSubmitted creates a prompt submitted signal.
func NewPromptSubmitted(turnID, prompt string, schemas []llms.FunctionSchema) PromptSubmitted {
	return PromptSubmitted{Base: NewBase(KindPromptSubmitted), TurnID: turnID, Prompt: prompt, Schemas: schemas}
}

// ContextAdded carries context added to history without a model call.
type ContextAdded struct {
	Base
	Content string `json:"content"`
}

// NewContextAdded creates a context added signal.
func NewContextAdded(content string) ContextAdded {
	return ContextAdded{Base: NewBase(KindContextAdded), Content: content}
}

// SystemPromptAdded carries a system prompt added to history.
type SystemPromptAdded struct {
	Base
	Content      string `json:"content"`
	WithResponse bool   `json:"with_response"`
}

// NewSystemPromptAdded creates a system prompt added signal.
func NewSystemPromptAdded(content string, withResponse bool) SystemPromptAdded {
	return SystemPromptAdded{Base: NewBase(KindSystemPromptAdded), Content: content, WithResponse: withResponse}
}

// PromptLockChanged reports whether new prompts are currently accepted.
type PromptLockChanged struct {
	Base
	Locked bool `json:"locked"`
}

// NewPromptLockChanged creates a prompt lock changed signal.
func NewPromptLockChanged(locked bool) PromptLockChanged {
	return PromptLockChanged{Base: NewBase(KindPromptLockChanged), Locked: locked}
}
