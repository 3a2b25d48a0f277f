package signals

import "github.com/koscakluka/natlang-core/core/llms"

const (
	// KindResponseReceived identifies a settled model call.
	KindResponseReceived Kind = "response.received"
	// KindHistorySnapshot identifies a transcript snapshot.
	KindHistorySnapshot Kind = "history.snapshot"
	// KindLoadingStart identifies the start of a model call.
	KindLoadingStart Kind = "loading.start"
	// KindLoadingEnd identifies the end of a model call.
	KindLoadingEnd Kind = "loading.end"
	// KindTurnFailed identifies a turn that could not complete.
	KindTurnFailed Kind = "turn.failed"
)

// ResponseReceived carries the raw model response. Response is nil when the
// model gave no answer, Err is set when the call failed or timed out.
type ResponseReceived struct {
	Base
	TurnID   string         `json:"turn_id"`
	Response *llms.Response `json:"response,omitempty"`
	Err      error          `json:"-"`
	Error    string         `json:"error,omitempty"`
}

// NewResponseReceived creates a response received signal.
func NewResponseReceived(turnID string, response *llms.Response, err error) ResponseReceived {
	signal := ResponseReceived{Base: NewBase(KindResponseReceived), TurnID: turnID, Response: response, Err: err}
	if err != nil {
		signal.Error = err.Error()
	}
	return signal
}

// HistorySnapshot carries a copy of the transcript.
type HistorySnapshot struct {
	Base
	History []llms.Message `json:"history"`
}

// NewHistorySnapshot creates a history snapshot signal.
func NewHistorySnapshot(history []llms.Message) HistorySnapshot {
	return HistorySnapshot{Base: NewBase(KindHistorySnapshot), History: history}
}

// LoadingStart marks the start of a model call.
type LoadingStart struct {
	Base
	TurnID string `json:"turn_id"`
}

// NewLoadingStart creates a loading start signal.
func NewLoadingStart(turnID string) LoadingStart {
	return LoadingStart{Base: NewBase(KindLoadingStart), TurnID: turnID}
}

// LoadingEnd marks the end of a model call.
type LoadingEnd struct {
	Base
	TurnID string `json:"turn_id"`
}

// NewLoadingEnd creates a loading end signal.
func NewLoadingEnd(turnID string) LoadingEnd {
	return LoadingEnd{Base: NewBase(KindLoadingEnd), TurnID: turnID}
}

// TurnFailed reports an error the host may want to present. The
// conversation has already returned to idle when it is emitted.
type TurnFailed struct {
	Base
	TurnID string `json:"turn_id"`
	Err    error  `json:"-"`
	Error  string `json:"error"`
}

// NewTurnFailed creates a turn failed signal.
func NewTurnFailed(turnID string, err error) TurnFailed {
	signal := TurnFailed{Base: NewBase(KindTurnFailed), TurnID: turnID, Err: err}
	if err != nil {
		signal.Error = err.Error()
	}
	return signal
}
