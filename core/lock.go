package chat

import (
	"sync"

	"github.com/koscakluka/natlang-core/core/signals"
)

// promptLock tracks whether the presentation layer should accept new
// prompts. It is locked while a turn runs or while an action holds it.
type promptLock struct {
	mu     sync.Mutex
	inTurn bool
	held   bool

	bus *signals.Bus
}

func (l *promptLock) locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inTurn || l.held
}

func (l *promptLock) setInTurn(inTurn bool) {
	l.update(func() { l.inTurn = inTurn })
}

func (l *promptLock) setHeld(held bool) {
	l.update(func() { l.held = held })
}

func (l *promptLock) update(change func()) {
	l.mu.Lock()
	before := l.inTurn || l.held
	change()
	after := l.inTurn || l.held
	l.mu.Unlock()

	if after != before {
		l.bus.PromptLock.Emit(signals.NewPromptLockChanged(after))
	}
}

// Locked reports whether new prompts should currently be held back.
func (c *Conversation) Locked() bool { return c.lock.locked() }

// LockPrompt holds the prompt lock until UnlockPrompt is called, independent
// of any running turn.
func (c *Conversation) LockPrompt() { c.lock.setHeld(true) }

func (c *Conversation) UnlockPrompt() { c.lock.setHeld(false) }
