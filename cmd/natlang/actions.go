package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/natlang-core/core/actions"
	"github.com/koscakluka/natlang-core/core/signals"
)

// componentNote renders a saved note.
const componentNote signals.ComponentKind = "note"

var errEmptyNote = errors.New("note is empty")

type rememberNoteArguments struct {
	Note string `json:"note" jsonschema:"description=The exact text the user wants remembered"`
}

// notebook holds the notes of a single conversation.
type notebook struct {
	mu    sync.Mutex
	notes []string
}

func (n *notebook) add(note string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return len(n.notes)
}

func (n *notebook) list() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notes...)
}

// demoActions returns the actions offered by the demo host. list_notes has no
// schema and is only reachable through recall_notes.
func demoActions(book *notebook, now func() time.Time) []actions.Factory {
	return []actions.Factory{
		actions.New("get_time", "Get the current local date and time",
			func(context.Context, actions.Service, struct{}) (string, error) {
				return "The current local time is " + now().Format(time.RFC1123), nil
			}),

		actions.New("remember_note", "Remember a short note for the user",
			func(_ context.Context, service actions.Service, data rememberNoteArguments) (string, error) {
				note := strings.TrimSpace(data.Note)
				if note == "" {
					return "", errEmptyNote
				}
				count := book.add(note)
				service.Render(signals.Component{
					Kind:   componentNote,
					Inputs: []signals.Input{{Name: "content", Value: note}},
				})
				return fmt.Sprintf("Saved the note %q. The user has %d notes.", note, count), nil
			}),

		actions.NewUnschemed("list_notes", "List every saved note",
			func(context.Context, actions.Service) (string, error) {
				notes := book.list()
				if len(notes) == 0 {
					return "", nil
				}
				var b strings.Builder
				for i, note := range notes {
					fmt.Fprintf(&b, "%d. %s\n", i+1, note)
				}
				return strings.TrimRight(b.String(), "\n"), nil
			}),

		actions.New("recall_notes", "Recall every note the user asked to remember",
			func(ctx context.Context, service actions.Service, _ struct{}) (string, error) {
				service.LockPrompt()
				defer service.UnlockPrompt()

				notes, err := service.RunAction(ctx, "list_notes", nil)
				if err != nil {
					return "", err
				}
				if notes == "" {
					return "The user has no saved notes.", nil
				}
				return "The user's notes are:\n" + notes, nil
			}),
	}
}
