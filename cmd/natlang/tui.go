package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	chat "github.com/koscakluka/natlang-core/core"
	"github.com/koscakluka/natlang-core/core/llms"
	"github.com/koscakluka/natlang-core/core/signals"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	componentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	noticeStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const inputHeight = 3

func newChatCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the model in the terminal",
		Long: `Starts an interactive conversation in the terminal.

Commands:
  /clear           forget the conversation
  /history         show the conversation as the model sees it
  /context <text>  add a system message without asking the model
  /system <text>   add a system message and let the model respond
  /cancel          stop waiting for the current answer
  /quit            leave`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			logOutput, closeLog, err := openLog(cfg.LogFile)
			if err != nil {
				return err
			}
			defer closeLog()
			slog.SetDefault(slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

			conversation, err := newConversation(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), conversation, cfg.Model)
		},
	}
}

func openLog(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

func runChat(ctx context.Context, conversation *chat.Conversation, model string) error {
	program := tea.NewProgram(newChatModel(ctx, conversation, model), tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe := subscribeProgram(conversation.Signals(), program)
	defer unsubscribe()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal ui failed: %w", err)
	}
	conversation.CancelTurn()
	return nil
}

// subscribeProgram forwards the signals the terminal renders to the program.
// Signals are emitted from commands running outside the update loop, so
// sending blocks at most until the loop is free.
func subscribeProgram(bus *signals.Bus, program *tea.Program) (unsubscribe func()) {
	unsubscribers := []func(){
		bus.ComponentRender.Subscribe(func(s signals.ComponentRender) { program.Send(renderMsg(s)) }),
		bus.LoadingStart.Subscribe(func(signals.LoadingStart) { program.Send(loadingMsg(true)) }),
		bus.LoadingEnd.Subscribe(func(signals.LoadingEnd) { program.Send(loadingMsg(false)) }),
		bus.PromptLock.Subscribe(func(s signals.PromptLockChanged) { program.Send(lockMsg(s.Locked)) }),
		bus.TurnFailed.Subscribe(func(s signals.TurnFailed) { program.Send(failedMsg(s)) }),
	}
	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}

type (
	renderMsg  signals.ComponentRender
	loadingMsg bool
	lockMsg    bool
	failedMsg  signals.TurnFailed
	clearedMsg struct{}
	noticeMsg  string
	errMsg     struct{ err error }
)

type entryKind int

const (
	entryComponent entryKind = iota
	entryNotice
	entryError
)

type entry struct {
	kind      entryKind
	component signals.Component
	text      string
}

type chatModel struct {
	ctx          context.Context
	conversation *chat.Conversation
	model        string

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	entries []entry
	loading bool
	locked  bool
	ready   bool
	width   int
}

func newChatModel(ctx context.Context, conversation *chat.Conversation, model string) chatModel {
	input := textinput.New()
	input.Placeholder = "Ask something, or /quit"
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	return chatModel{
		ctx:          ctx,
		conversation: conversation,
		model:        model,
		input:        input,
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := max(msg.Height-inputHeight-1, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			value := strings.TrimSpace(m.input.Value())
			if value == "" || m.locked {
				return m, nil
			}
			m.input.Reset()
			return m, m.handleInput(value)
		}

	case renderMsg:
		m.insert(entry{kind: entryComponent, component: msg.Component}, msg.Component.Index)
	case failedMsg:
		m.insert(entry{kind: entryError, text: msg.Error}, nil)
	case noticeMsg:
		m.insert(entry{kind: entryNotice, text: string(msg)}, nil)
	case errMsg:
		m.insert(entry{kind: entryError, text: msg.err.Error()}, nil)
	case clearedMsg:
		m.entries = nil
		m.insert(entry{kind: entryNotice, text: "Conversation cleared."}, nil)

	case loadingMsg:
		m.loading = bool(msg)
		if m.loading {
			cmds = append(cmds, m.spinner.Tick)
		}
	case lockMsg:
		m.locked = bool(msg)
		if m.locked {
			m.input.Blur()
		} else {
			cmds = append(cmds, m.input.Focus())
		}

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// handleInput turns a line of input into a command. Conversation methods emit
// signals that are sent back to the program, so they only run inside commands.
func (m chatModel) handleInput(value string) tea.Cmd {
	conversation := m.conversation
	ctx := m.ctx

	command, argument, _ := strings.Cut(value, " ")
	argument = strings.TrimSpace(argument)

	switch command {
	case "/quit", "/exit":
		return tea.Quit
	case "/clear":
		return func() tea.Msg {
			if err := conversation.ClearHistory(ctx); err != nil {
				return historyError(err)
			}
			return clearedMsg{}
		}
	case "/cancel":
		return func() tea.Msg {
			conversation.CancelTurn()
			return noticeMsg("Stopped waiting for an answer.")
		}
	case "/history":
		return func() tea.Msg { return noticeMsg(formatHistory(conversation.History())) }
	case "/context":
		if argument == "" {
			return func() tea.Msg { return errMsg{errors.New("usage: /context <text>")} }
		}
		return func() tea.Msg {
			if err := conversation.GiveContext(ctx, argument); err != nil {
				return historyError(err)
			}
			return noticeMsg("Context added.")
		}
	case "/system":
		if argument == "" {
			return func() tea.Msg { return errMsg{errors.New("usage: /system <text>")} }
		}
		return func() tea.Msg {
			if err := conversation.SystemPrompt(ctx, argument, true); err != nil {
				return submitError(err)
			}
			return nil
		}
	}

	return func() tea.Msg {
		if err := conversation.Submit(ctx, value); err != nil {
			return submitError(err)
		}
		return nil
	}
}

// submitError reports errors that were not already shown as a failed turn.
func submitError(err error) tea.Msg {
	if errors.Is(err, chat.ErrTurnInProgress) {
		return errMsg{errors.New("still waiting for the previous answer")}
	}
	return nil
}

func historyError(err error) tea.Msg {
	if errors.Is(err, chat.ErrTurnInProgress) {
		return errMsg{errors.New("wait for the answer before changing the conversation")}
	}
	return errMsg{err}
}

func formatHistory(history []llms.Message) string {
	if len(history) == 0 {
		return "The conversation is empty."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d messages:", len(history))
	for _, message := range history {
		fmt.Fprintf(&b, "\n  %s: %s", message.Role, message.Content)
	}
	return b.String()
}

func (m *chatModel) insert(e entry, index *int) {
	if index != nil && *index >= 0 && *index <= len(m.entries) {
		m.entries = append(m.entries[:*index], append([]entry{e}, m.entries[*index:]...)...)
	} else {
		m.entries = append(m.entries, e)
	}
	m.refresh()
}

func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderEntries())
	m.viewport.GotoBottom()
}

func (m chatModel) renderEntries() string {
	width := max(m.width-2, 20)
	blocks := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		blocks = append(blocks, renderEntry(e, width))
	}
	return strings.Join(blocks, "\n\n")
}

func renderEntry(e entry, width int) string {
	switch e.kind {
	case entryNotice:
		return noticeStyle.Render(wordwrap.String(e.text, width))
	case entryError:
		return errorStyle.Render(wordwrap.String("Error: "+e.text, width))
	}

	component := e.component
	switch component.Kind {
	case signals.ComponentUserMessage:
		return userStyle.Render("You") + "\n" + wordwrap.String(component.Content(), width)
	case signals.ComponentAssistantMessage:
		return assistantStyle.Render("Assistant") + "\n" + wordwrap.String(component.Content(), width)
	case componentNote:
		return componentStyle.Render("Noted: ") + wordwrap.String(component.Content(), width)
	}

	var b strings.Builder
	b.WriteString(componentStyle.Render(string(component.Kind)))
	for _, input := range component.Inputs {
		fmt.Fprintf(&b, "\n  %s: %v", input.Name, input.Value)
	}
	return wordwrap.String(b.String(), width)
}

func (m chatModel) View() string {
	if !m.ready {
		return "Starting..."
	}

	status := titleStyle.Render("natlang") + statusStyle.Render(" · "+m.model)
	switch {
	case m.loading:
		status += " " + m.spinner.View() + statusStyle.Render(" thinking")
	case m.locked:
		status += statusStyle.Render(" busy")
	}

	return fmt.Sprintf("%s\n%s\n%s", m.viewport.View(), status, m.input.View())
}
