package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/koscakluka/natlang-core/core/llms"
	"github.com/koscakluka/natlang-core/core/signals"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	outcomeCompleted  = "completed"
	outcomeNoResponse = "no_response"
	outcomeTimeout    = "timeout"
	outcomeCancelled  = "cancelled"
	outcomeFailed     = "failed"
)

// turn is a single cycle from a prompt to the conversation being idle again.
type turn struct {
	id      string
	kind    string
	ctx     context.Context
	cancel  context.CancelCauseFunc
	outcome string
	loading bool
}

// Submit adds prompt to the conversation as a user message and handles the
// model's answer. It returns once the conversation is idle again.
//
// Only one turn runs at a time. Unless the conversation queues prompts, a
// prompt submitted during another turn fails with ErrTurnInProgress.
//
// An answer that cannot be obtained because the model gave none, timed out
// or the turn was cancelled is not an error. Failed model calls and failed
// actions are returned and reported on the TurnFailed channel.
func (c *Conversation) Submit(ctx context.Context, prompt string, opts ...SubmitOption) error {
	options := submitOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	activeSchemas := c.runtime.Registry().Schemas()
	if options.overrideSchemas {
		activeSchemas = options.schemas
	}

	ctx, span := tracer.Start(ctx, "submit prompt", trace.WithAttributes(
		attribute.Int("schemas.count", len(activeSchemas)),
		attribute.Bool("schemas.overridden", options.overrideSchemas),
	))
	defer span.End()

	t, err := c.beginTurn(ctx, "prompt")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer c.endTurn(t)
	span.SetAttributes(attribute.String("turn.id", t.id))

	c.history.AppendUser(prompt)
	c.renderMessage(t.id, signals.ComponentUserMessage, prompt)
	c.signals.PromptSubmitted.Emit(signals.NewPromptSubmitted(t.id, prompt, activeSchemas))

	if err := c.respond(t, activeSchemas); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// SystemPrompt adds content to the conversation as a system message. When
// withResponse is set the model is asked for an answer right away, without
// being offered any actions. Either way it is admitted like a prompt.
func (c *Conversation) SystemPrompt(ctx context.Context, content string, withResponse bool) error {
	ctx, span := tracer.Start(ctx, "system prompt", trace.WithAttributes(
		attribute.Bool("system_prompt.with_response", withResponse),
	))
	defer span.End()

	if !withResponse {
		if err := c.admit(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		defer c.admission.Release(1)

		c.history.AppendSystem(content)
		c.signals.SystemPromptAdded.Emit(signals.NewSystemPromptAdded(content, false))
		return nil
	}

	t, err := c.beginTurn(ctx, "system_prompt")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer c.endTurn(t)
	span.SetAttributes(attribute.String("turn.id", t.id))

	c.history.AppendSystem(content)
	c.signals.SystemPromptAdded.Emit(signals.NewSystemPromptAdded(content, true))

	if err := c.respond(t, []llms.FunctionSchema{}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// admit takes the single admission slot that turns and host writes to history
// share. The caller releases it.
func (c *Conversation) admit(ctx context.Context) error {
	if c.queuePrompts {
		if err := c.admission.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("failed to wait for running turn: %w", err)
		}
		return nil
	}
	if !c.admission.TryAcquire(1) {
		return ErrTurnInProgress
	}
	return nil
}

func (c *Conversation) beginTurn(ctx context.Context, kind string) (*turn, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}

	turnCtx, cancel := context.WithCancelCause(ctx)
	t := &turn{id: uuid.NewString(), kind: kind, ctx: turnCtx, cancel: cancel}

	c.mu.Lock()
	c.activeTurn = t
	c.mu.Unlock()
	c.lock.setInTurn(true)

	return t, nil
}

func (c *Conversation) endTurn(t *turn) {
	t.cancel(nil)

	c.mu.Lock()
	c.activeTurn = nil
	c.mu.Unlock()
	c.lock.setInTurn(false)
	c.admission.Release(1)

	turnCounter.Add(context.WithoutCancel(t.ctx), 1, metric.WithAttributes(
		attribute.String("turn.kind", t.kind),
		attribute.String("turn.outcome", t.outcome),
	))
}

// respond asks the model for an answer and applies it to the conversation.
//
// Loading starts with the first model call and ends once no further call can
// follow, so a turn emits a single loading pair even with an action follow-up.
func (c *Conversation) respond(t *turn, activeSchemas []llms.FunctionSchema) error {
	defer c.endLoading(t)

	response, err := c.getResponse(t, activeSchemas)
	if err != nil {
		c.fail(t, err)
		return err
	}
	if !c.actionFollowUp || !response.HasFunctionCall() {
		c.endLoading(t)
	}
	if response.IsEmpty() {
		if t.outcome == "" {
			t.outcome = outcomeNoResponse
		}
		logger.DebugContext(t.ctx, "turn ended without an answer", "turn_id", t.id, "reason", t.outcome, "error", ErrNoResponse)
		return nil
	}

	if response.HasContent() {
		c.history.AppendAssistant(*response.Content)
		c.renderMessage(t.id, signals.ComponentAssistantMessage, *response.Content)
	}

	if response.HasFunctionCall() {
		if err := c.runFunctionCall(t, activeSchemas, response.FunctionCall); err != nil {
			c.fail(t, err)
			return err
		}
	}

	if t.outcome == "" {
		t.outcome = outcomeCompleted
	}
	return nil
}

// fail reports a failed turn once loading has ended.
func (c *Conversation) fail(t *turn, err error) {
	c.endLoading(t)
	t.outcome = outcomeFailed
	c.signals.TurnFailed.Emit(signals.NewTurnFailed(t.id, err))
}

func (c *Conversation) startLoading(t *turn) {
	if t.loading {
		return
	}
	t.loading = true
	c.signals.LoadingStart.Emit(signals.NewLoadingStart(t.id))
}

func (c *Conversation) endLoading(t *turn) {
	if !t.loading {
		return
	}
	t.loading = false
	c.signals.LoadingEnd.Emit(signals.NewLoadingEnd(t.id))
}

func (c *Conversation) runFunctionCall(t *turn, activeSchemas []llms.FunctionSchema, call *llms.FunctionCall) error {
	action, schema, ok := c.runtime.Resolve(activeSchemas, call)
	if !ok {
		logger.DebugContext(t.ctx, "ignoring call to an action that was not offered",
			"turn_id", t.id, "action", call.Name)
		return nil
	}

	result, err := c.runtime.Invoke(t.ctx, action, schema, call.Arguments)
	if err != nil {
		logger.WarnContext(t.ctx, "action failed", "turn_id", t.id, "action", call.Name, "error", err)
		return fmt.Errorf("failed to run action %q: %w", call.Name, err)
	}
	if result == "" {
		return nil
	}

	c.history.AppendSystem(result)
	if c.actionFollowUp {
		return c.followUp(t, activeSchemas)
	}
	return nil
}

// followUp asks the model to react to an action result. Only the content of
// the reply is used, a further function call is not run.
func (c *Conversation) followUp(t *turn, activeSchemas []llms.FunctionSchema) error {
	response, err := c.getResponse(t, activeSchemas)
	c.endLoading(t)
	if err != nil {
		return err
	}
	if response.HasFunctionCall() {
		logger.DebugContext(t.ctx, "ignoring function call in follow-up response",
			"turn_id", t.id, "action", response.FunctionCall.Name)
	}
	if response.HasContent() {
		c.history.AppendAssistant(*response.Content)
		c.renderMessage(t.id, signals.ComponentAssistantMessage, *response.Content)
	}
	return nil
}

// getResponse calls the model and emits the response signal. Loading is
// started if it is not on yet, ending it is left to the caller. A missing
// answer, a timeout and a cancelled turn all yield a nil response without an
// error.
func (c *Conversation) getResponse(t *turn, activeSchemas []llms.FunctionSchema) (*llms.Response, error) {
	ctx, span := tracer.Start(t.ctx, "get response", trace.WithAttributes(
		attribute.String("turn.id", t.id),
		attribute.Int("schemas.count", len(activeSchemas)),
	))
	defer span.End()

	c.startLoading(t)
	response, err := c.callGenerator(ctx, activeSchemas)
	c.signals.ResponseReceived.Emit(signals.NewResponseReceived(t.id, response, err))

	switch {
	case err == nil:
		span.SetAttributes(
			attribute.Bool("response.has_content", response.HasContent()),
			attribute.Bool("response.has_function_call", response.HasFunctionCall()),
		)
		return response, nil
	case errors.Is(err, ErrTimeout):
		logger.WarnContext(ctx, "model response timed out", "turn_id", t.id, "timeout", c.responseTimeout)
		span.SetAttributes(attribute.Bool("response.timed_out", true))
		t.outcome = outcomeTimeout
		return nil, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.InfoContext(ctx, "turn cancelled while waiting for the model", "turn_id", t.id)
		span.SetAttributes(attribute.Bool("response.cancelled", true))
		t.outcome = outcomeCancelled
		return nil, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
}

// callGenerator runs the model call in its own goroutine so the turn can end
// on timeout or cancellation even if the generator ignores its context. A
// result that arrives after that is dropped.
func (c *Conversation) callGenerator(ctx context.Context, activeSchemas []llms.FunctionSchema) (*llms.Response, error) {
	if c.responseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.responseTimeout, ErrTimeout)
		defer cancel()
	}

	type result struct {
		response *llms.Response
		err      error
	}
	history := c.history.Snapshot()
	results := make(chan result, 1)
	go func() {
		var r result
		var catcher panics.Catcher
		catcher.Try(func() { r.response, r.err = c.generator.GetResponse(ctx, history, activeSchemas) })
		if recovered := catcher.Recovered(); recovered != nil {
			r.err = recovered.AsError()
		}
		results <- r
	}()

	select {
	case r := <-results:
		if r.err == nil {
			return r.response, nil
		}
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, fmt.Errorf("%w: %w", ErrModelCall, r.err)
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}
