package chat

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/natlang-core/core/llms"
	"github.com/koscakluka/natlang-core/core/signals"
)

type generatorStep func(ctx context.Context) (*llms.Response, error)

type generatorCall struct {
	history []llms.Message
	schemas []llms.FunctionSchema
}

// scriptedGenerator answers each call with the next step. It answers with no
// response once the steps run out.
type scriptedGenerator struct {
	mu    sync.Mutex
	steps []generatorStep
	calls []generatorCall
}

func newScriptedGenerator(steps ...generatorStep) *scriptedGenerator {
	return &scriptedGenerator{steps: steps}
}

func (g *scriptedGenerator) GetResponse(ctx context.Context, history []llms.Message, schemas []llms.FunctionSchema) (*llms.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, generatorCall{history: history, schemas: schemas})
	var step generatorStep
	if len(g.steps) > 0 {
		step = g.steps[0]
		g.steps = g.steps[1:]
	}
	g.mu.Unlock()

	if step == nil {
		return nil, nil
	}
	return step(ctx)
}

func (g *scriptedGenerator) recordedCalls() []generatorCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

func respondWith(response *llms.Response) generatorStep {
	return func(context.Context) (*llms.Response, error) { return response, nil }
}

func failWith(err error) generatorStep {
	return func(context.Context) (*llms.Response, error) { return nil, err }
}

// blockUntilDone signals started and waits for the call to be abandoned.
func blockUntilDone(started chan<- struct{}) generatorStep {
	return func(ctx context.Context) (*llms.Response, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// blockUntilReleased signals started and answers once release is closed.
func blockUntilReleased(started chan<- struct{}, release <-chan struct{}, response *llms.Response) generatorStep {
	return func(context.Context) (*llms.Response, error) {
		started <- struct{}{}
		<-release
		return response, nil
	}
}

type signalRecorder struct {
	mu      sync.Mutex
	signals []signals.Signal
}

func recordSignals(c *Conversation) *signalRecorder {
	recorder := &signalRecorder{}
	c.Signals().SubscribeAll(func(signal signals.Signal) {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		recorder.signals = append(recorder.signals, signal)
	})
	return recorder
}

func (r *signalRecorder) kinds() []signals.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]signals.Kind, 0, len(r.signals))
	for _, signal := range r.signals {
		kinds = append(kinds, signal.Kind())
	}
	return kinds
}

func (r *signalRecorder) count(kind signals.Kind) int {
	count := 0
	for _, recorded := range r.kinds() {
		if recorded == kind {
			count++
		}
	}
	return count
}

func (r *signalRecorder) renders() []signals.ComponentRender {
	r.mu.Lock()
	defer r.mu.Unlock()

	var renders []signals.ComponentRender
	for _, signal := range r.signals {
		if render, ok := signal.(signals.ComponentRender); ok {
			renders = append(renders, render)
		}
	}
	return renders
}

func (r *signalRecorder) responses() []signals.ResponseReceived {
	r.mu.Lock()
	defer r.mu.Unlock()

	var responses []signals.ResponseReceived
	for _, signal := range r.signals {
		if response, ok := signal.(signals.ResponseReceived); ok {
			responses = append(responses, response)
		}
	}
	return responses
}

func newTestConversation(t *testing.T, generator llms.ResponseGenerator, opts ...Option) *Conversation {
	t.Helper()

	c, err := New(generator, opts...)
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	return c
}

func waitFor(t *testing.T, ch <-chan struct{}, description string) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", description)
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

func expectHistory(t *testing.T, c *Conversation, expected ...llms.Message) {
	t.Helper()

	if got := c.History(); !slices.Equal(got, expected) {
		t.Fatalf("expected history %v, got %v", expected, got)
	}
}
