// Package history holds the ordered transcript of a conversation.
package history

import (
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/koscakluka/natlang-core/core/llms"
)

var ErrInvalidRole = errors.New("invalid message role")

// Store is an append-only, ordered conversation transcript. Entries can only
// be removed all at once with Clear.
type Store struct {
	mu       sync.RWMutex
	messages []llms.Message
}

func New() *Store {
	return &Store{}
}

// Append adds a message to the end of the transcript.
func (s *Store) Append(message llms.Message) error {
	if !message.Role.Valid() {
		return fmt.Errorf("failed to append message: %w: %q", ErrInvalidRole, message.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, message)
	return nil
}

func (s *Store) AppendUser(content string) { _ = s.Append(llms.UserMessage(content)) }

func (s *Store) AppendAssistant(content string) { _ = s.Append(llms.AssistantMessage(content)) }

func (s *Store) AppendSystem(content string) { _ = s.Append(llms.SystemMessage(content)) }

// Snapshot returns a copy of the transcript, oldest first. Later changes to
// the store are never visible through a returned snapshot.
func (s *Store) Snapshot() []llms.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]llms.Message, len(s.messages))
	copy(snapshot, s.messages)
	return snapshot
}

// Clear removes all stored messages
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.messages)
}

// Values is an iterator that goes over a snapshot of the stored messages
// starting from the earliest towards the latest
func (s *Store) Values() iter.Seq[llms.Message] {
	snapshot := s.Snapshot()
	return func(yield func(llms.Message) bool) {
		for _, message := range snapshot {
			if !yield(message) {
				return
			}
		}
	}
}
