// Package chat runs a prompt-driven conversation with a language model. A
// Conversation owns the transcript, offers registered actions to the model,
// runs the action the model selects and reports everything that happens on a
// signal bus the presentation layer subscribes to.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/natlang-core/core/actions"
	"github.com/koscakluka/natlang-core/core/history"
	"github.com/koscakluka/natlang-core/core/llms"
	"github.com/koscakluka/natlang-core/core/signals"
	"golang.org/x/sync/semaphore"
)

type Conversation struct {
	generator llms.ResponseGenerator
	history   *history.Store
	signals   *signals.Bus
	runtime   *actions.Runtime

	factories       []actions.Factory
	responseTimeout time.Duration
	queuePrompts    bool
	prepend         bool
	actionFollowUp  bool

	admission *semaphore.Weighted
	lock      promptLock

	mu         sync.Mutex
	activeTurn *turn
}

// New creates a conversation that asks generator for every response.
func New(generator llms.ResponseGenerator, opts ...Option) (*Conversation, error) {
	if generator == nil {
		return nil, ErrNoResponseGenerator
	}

	c := &Conversation{
		generator:       generator,
		history:         history.New(),
		responseTimeout: DefaultResponseTimeout,
		admission:       semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.signals == nil {
		c.signals = signals.NewBus()
	}
	c.lock.bus = c.signals

	registry, err := actions.NewRegistry(&actionService{c: c}, c.factories...)
	if err != nil {
		return nil, fmt.Errorf("failed to register actions: %w", err)
	}
	c.runtime = actions.NewRuntime(registry)
	c.factories = nil

	return c, nil
}

// Signals returns the bus the conversation emits on.
func (c *Conversation) Signals() *signals.Bus { return c.signals }

// Schemas returns the schemas offered to the model when a prompt does not
// override them.
func (c *Conversation) Schemas() []llms.FunctionSchema { return c.runtime.Registry().Schemas() }

// History returns a copy of the transcript and emits it as a history snapshot.
func (c *Conversation) History() []llms.Message {
	snapshot := c.history.Snapshot()
	c.signals.HistorySnapshot.Emit(signals.NewHistorySnapshot(snapshot))
	return snapshot
}

// ClearHistory removes every message from the transcript. Like a prompt it
// has to wait for its turn: it fails with ErrTurnInProgress while a turn runs,
// or waits for it when prompts are queued.
func (c *Conversation) ClearHistory(ctx context.Context) error {
	if err := c.admit(ctx); err != nil {
		return err
	}
	defer c.admission.Release(1)

	c.clearHistory()
	return nil
}

// GiveContext adds a system message without asking the model for a response.
// It is admitted the same way as ClearHistory.
func (c *Conversation) GiveContext(ctx context.Context, content string) error {
	if err := c.admit(ctx); err != nil {
		return err
	}
	defer c.admission.Release(1)

	c.giveContext(content)
	return nil
}

func (c *Conversation) clearHistory() {
	c.history.Clear()
	c.signals.HistorySnapshot.Emit(signals.NewHistorySnapshot([]llms.Message{}))
}

func (c *Conversation) giveContext(content string) {
	c.history.AppendSystem(content)
	c.signals.ContextAdded.Emit(signals.NewContextAdded(content))
}

// Render emits a component on behalf of an action. The component is
// attributed to the running turn, if any.
func (c *Conversation) Render(component signals.Component) {
	c.signals.ComponentRender.Emit(signals.NewComponentRender(c.activeTurnID(), component))
}

// CancelTurn abandons the running turn. The turn ends as if the model gave no
// answer and a late response is discarded.
func (c *Conversation) CancelTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeTurn != nil {
		c.activeTurn.cancel(context.Canceled)
	}
}

func (c *Conversation) activeTurnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeTurn == nil {
		return ""
	}
	return c.activeTurn.id
}

func (c *Conversation) renderMessage(turnID string, kind signals.ComponentKind, content string) {
	component := signals.MessageComponent(kind, content)
	if c.prepend {
		index := 0
		component.Index = &index
	}
	c.signals.ComponentRender.Emit(signals.NewComponentRender(turnID, component))
}
