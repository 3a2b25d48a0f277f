package chat

import (
	"context"

	"github.com/koscakluka/natlang-core/core/actions"
	"github.com/koscakluka/natlang-core/core/llms"
	"github.com/koscakluka/natlang-core/core/signals"
)

// actionService is the conversation as seen by its actions. Actions only run
// as part of a turn that already holds admission, so history is written
// directly instead of waiting for the turn to end.
type actionService struct {
	c *Conversation
}

var _ actions.Service = (*actionService)(nil)

func (s *actionService) Render(component signals.Component) { s.c.Render(component) }

func (s *actionService) LockPrompt() { s.c.LockPrompt() }

func (s *actionService) UnlockPrompt() { s.c.UnlockPrompt() }

func (s *actionService) GiveContext(content string) { s.c.giveContext(content) }

func (s *actionService) History() []llms.Message { return s.c.History() }

// RunAction runs any registered action by name, including actions that are
// never offered to the model.
func (s *actionService) RunAction(ctx context.Context, name string, data any) (string, error) {
	return s.c.runtime.Run(ctx, name, data)
}
