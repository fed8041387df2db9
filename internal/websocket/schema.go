package websocket

import "github.com/smquiz/quiz-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart    Action = "start"
	ActionSelect   Action = "select"
	ActionNavigate Action = "navigate"
	ActionReview   Action = "review"
	ActionSignal   Action = "signal"
	ActionBlocked  Action = "blocked"
	ActionState    Action = "state"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is the single shape of every client message. Fields not
// used by an action are ignored.
type RequestPayload struct {
	Action Action `json:"action"`
	// Accept acknowledges the instructions (start).
	Accept bool `json:"accept,omitempty"`
	// Index is the question index (select, navigate, review).
	Index *int `json:"index,omitempty"`
	// Option or Value carries the answer (select).
	Option *int   `json:"option,omitempty"`
	Value  *int64 `json:"value,omitempty"`
	// Kind names the signal or blocked action (signal, blocked).
	Kind string `json:"kind,omitempty"`
}

// AnswerValue returns the answer carried by a select action.
func (p RequestPayload) AnswerValue() model.AnswerValue {
	return model.AnswerValue{Option: p.Option, Value: p.Value}
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventStarted   Event = "started"
	EventTimer     Event = "timer"
	EventWarning   Event = "warning"
	EventRejected  Event = "rejected"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// StateResponse carries a full snapshot, sent on connect and on request.
type StateResponse struct {
	Event    Event          `json:"event"`
	Snapshot model.Snapshot `json:"snapshot"`
}

// StartedResponse tells the client the attempt is running. Fullscreen asks
// the client to request fullscreen mode; the attempt does not wait for it.
type StartedResponse struct {
	Event      Event          `json:"event"`
	Fullscreen bool           `json:"fullscreen"`
	Snapshot   model.Snapshot `json:"snapshot"`
}

type TimerResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

type WarningResponse struct {
	Event Event `json:"event"`
	Count int   `json:"count"`
	Max   int   `json:"max"`
}

// RejectedResponse reports an action that had no effect, such as a select
// after submission or an index outside the paper.
type RejectedResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

type SubmittedResponse struct {
	Event   Event             `json:"event"`
	Trigger model.Trigger     `json:"trigger"`
	Result  model.ScoreResult `json:"result"`
	Review  model.Review      `json:"review"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
