// Package wsrelay exposes a conversation over a WebSocket. Every signal the
// conversation emits is forwarded to connected clients as a JSON envelope and
// clients drive the conversation by sending commands.
package wsrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	chat "github.com/koscakluka/natlang-core/core"
	"github.com/koscakluka/natlang-core/core/llms"
	"github.com/koscakluka/natlang-core/core/signals"
)

// KindRelayError identifies an envelope reporting a failed command.
const KindRelayError signals.Kind = "relay.error"

const (
	defaultBufferSize   = 64
	defaultWriteTimeout = 10 * time.Second
)

// Host is the conversation driven by the relay.
type Host interface {
	Signals() *signals.Bus
	Schemas() []llms.FunctionSchema
	Submit(ctx context.Context, prompt string, opts ...chat.SubmitOption) error
	SystemPrompt(ctx context.Context, content string, withResponse bool) error
	GiveContext(ctx context.Context, content string) error
	ClearHistory(ctx context.Context) error
	History() []llms.Message
	CancelTurn()
}

var _ Host = (*chat.Conversation)(nil)

// Envelope is a single message sent to clients.
type Envelope struct {
	Kind      signals.Kind    `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type Handler struct {
	host         Host
	upgrader     websocket.Upgrader
	bufferSize   int
	writeTimeout time.Duration
}

type Option func(*Handler)

// WithCheckOrigin replaces the same-origin check done during the upgrade.
func WithCheckOrigin(checkOrigin func(r *http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = checkOrigin }
}

// WithBufferSize sets how many envelopes may wait for a slow client before
// new ones are dropped.
func WithBufferSize(size int) Option {
	return func(h *Handler) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		if timeout > 0 {
			h.writeTimeout = timeout
		}
	}
}

func New(host Host, opts ...Option) *Handler {
	h := &Handler{
		host:         host,
		bufferSize:   defaultBufferSize,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(r.Context(), "failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	s := &session{
		handler:  h,
		conn:     conn,
		outbound: make(chan Envelope, h.bufferSize),
		queue:    make(chan Command, h.bufferSize),
		done:     make(chan struct{}),
	}
	logger.InfoContext(ctx, "client connected", "remote", r.RemoteAddr)

	unsubscribe := h.host.Signals().SubscribeAll(s.forward)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(ctx)
	}()
	s.commands.Add(1)
	go func() {
		defer s.commands.Done()
		s.runCommands(ctx)
	}()

	s.readLoop(ctx)

	unsubscribe()
	cancel()
	s.close()
	wg.Wait()
	s.commands.Wait()
	_ = conn.Close()
	logger.InfoContext(r.Context(), "client disconnected", "remote", r.RemoteAddr)
}

type session struct {
	handler  *Handler
	conn     *websocket.Conn
	outbound chan Envelope
	queue    chan Command

	closeOnce sync.Once
	done      chan struct{}
	commands  sync.WaitGroup
}

// forward queues a signal for the client. It never blocks the emitter, a
// signal that does not fit in the buffer is dropped.
func (s *session) forward(signal signals.Signal) {
	envelope, err := newEnvelope(signal.Kind(), signal.Timestamp(), signal)
	if err != nil {
		logger.Warn("failed to encode signal", "kind", signal.Kind(), "error", err)
		return
	}
	s.send(envelope)
}

func (s *session) send(envelope Envelope) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.outbound <- envelope:
	case <-s.done:
	default:
		logger.Warn("client too slow, dropping signal", "kind", envelope.Kind)
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.handler.writeTimeout))
			return
		case envelope := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.handler.writeTimeout))
			if err := s.conn.WriteJSON(envelope); err != nil {
				logger.WarnContext(ctx, "failed to write to client", "error", err)
				s.close()
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.DebugContext(ctx, "read from client failed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var command Command
		if err := json.Unmarshal(message, &command); err != nil {
			s.reportError("", fmt.Errorf("%w: %w", ErrInvalidCommand, err))
			continue
		}

		// cancel_turn skips the queue so it can stop the turn queued commands
		// wait for.
		if command.Type == CommandCancelTurn {
			if err := s.handler.run(ctx, command); err != nil {
				s.reportError(command.Type, err)
			}
			continue
		}

		select {
		case s.queue <- command:
		default:
			s.reportError(command.Type, fmt.Errorf("%w: %d commands waiting", ErrCommandQueueFull, cap(s.queue)))
		}
	}
}

// runCommands runs the commands of a client one at a time, in the order they
// were sent.
func (s *session) runCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case command := <-s.queue:
			if err := s.handler.run(ctx, command); err != nil {
				s.reportError(command.Type, err)
			}
		}
	}
}

func (s *session) reportError(commandType CommandType, err error) {
	envelope, encodeErr := newEnvelope(KindRelayError, time.Now(), commandError{Command: commandType, Error: err.Error()})
	if encodeErr != nil {
		return
	}
	s.send(envelope)
}

func newEnvelope(kind signals.Kind, timestamp time.Time, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: kind, Timestamp: timestamp, Data: raw}, nil
}
