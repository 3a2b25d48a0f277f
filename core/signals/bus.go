package signals

import (
	"slices"
	"sync"
)

// Channel is a single named signal channel with any number of subscribers.
// The zero value is ready to use. Emitting on a nil channel is a no-op.
type Channel[T Signal] struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers []subscriber[T]

	// all forwards every emission to the bus-wide channel, nil when the
	// channel is not attached to a bus.
	all *Channel[Signal]
}

type subscriber[T Signal] struct {
	id       uint64
	callback func(T)
}

// Subscribe registers a callback for future emissions. The returned function
// removes the subscription and is safe to call more than once.
func (c *Channel[T]) Subscribe(callback func(T)) (unsubscribe func()) {
	if c == nil || callback == nil {
		return func() {}
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subscribers = append(c.subscribers, subscriber[T]{id: id, callback: callback})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.subscribers = slices.DeleteFunc(slices.Clone(c.subscribers), func(s subscriber[T]) bool {
				return s.id == id
			})
		})
	}
}

// Emit delivers the signal to all current subscribers in registration order
// and returns once all of them have run. Subscribers may subscribe or
// unsubscribe from within a callback; the change applies to the next Emit.
func (c *Channel[T]) Emit(signal T) {
	if c == nil {
		return
	}

	c.mu.RLock()
	subscribers := c.subscribers
	all := c.all
	c.mu.RUnlock()

	for _, subscriber := range subscribers {
		subscriber.callback(signal)
	}

	if all != nil {
		all.Emit(signal)
	}
}

// SubscriberCount returns the number of active subscribers.
func (c *Channel[T]) SubscriberCount() int {
	if c == nil {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers)
}

// Bus groups the signal channels of a single conversation. It must not be
// shared between conversations.
type Bus struct {
	ComponentRender   Channel[ComponentRender]
	PromptSubmitted   Channel[PromptSubmitted]
	ResponseReceived  Channel[ResponseReceived]
	HistorySnapshot   Channel[HistorySnapshot]
	LoadingStart      Channel[LoadingStart]
	LoadingEnd        Channel[LoadingEnd]
	ContextAdded      Channel[ContextAdded]
	SystemPromptAdded Channel[SystemPromptAdded]
	PromptLock        Channel[PromptLockChanged]
	TurnFailed        Channel[TurnFailed]

	all Channel[Signal]
}

func NewBus() *Bus {
	b := &Bus{}
	b.ComponentRender.all = &b.all
	b.PromptSubmitted.all = &b.all
	b.ResponseReceived.all = &b.all
	b.HistorySnapshot.all = &b.all
	b.LoadingStart.all = &b.all
	b.LoadingEnd.all = &b.all
	b.ContextAdded.all = &b.all
	b.SystemPromptAdded.all = &b.all
	b.PromptLock.all = &b.all
	b.TurnFailed.all = &b.all
	return b
}

// SubscribeAll registers a callback that receives every signal emitted on any
// of the bus channels, after the channel's own subscribers.
func (b *Bus) SubscribeAll(callback func(Signal)) (unsubscribe func()) {
	if b == nil {
		return func() {}
	}
	return b.all.Subscribe(callback)
}

// AllSubscriberCount returns the number of callbacks registered with
// SubscribeAll.
func (b *Bus) AllSubscriberCount() int {
	if b == nil {
		return 0
	}
	return b.all.SubscriberCount()
}
