// Package signals defines the typed signals a conversation emits and the bus
// that delivers them.
//
// Every signal travels on its own channel of the [Bus]. Delivery is
// synchronous: subscribers run in registration order before Emit returns.
// Channels have no memory, a subscriber registered after an emission never
// sees it.
//
// Kinds are grouped by receiver-facing namespaces:
//
//   - ComponentRender (component.render): a component (user message,
//     assistant message or an action-defined component) should be rendered.
//   - PromptSubmitted (prompt.submitted): a user prompt was admitted as a
//     new turn; carries the active schema set.
//   - ResponseReceived (response.received): the model call settled; carries
//     the raw response, which may be absent.
//   - HistorySnapshot (history.snapshot): point-in-time copy of the
//     transcript, emitted when the host reads or clears history.
//   - LoadingStart (loading.start) and LoadingEnd (loading.end): bracket a
//     model call. Both are emitted exactly once per call, on every path.
//   - ContextAdded (context.added): silent context was added to history.
//   - SystemPromptAdded (system_prompt.added): a system prompt was added.
//   - PromptLockChanged (prompt_lock.changed): whether new prompts are
//     currently accepted changed.
//   - TurnFailed (turn.failed): the turn could not complete its action or
//     model call; the conversation is back to idle.
package signals
