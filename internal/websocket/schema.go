package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart         Action = "start"
	ActionAnswer        Action = "answer"
	ActionMark          Action = "mark"
	ActionGoto          Action = "goto"
	ActionNext          Action = "next"
	ActionPrev          Action = "prev"
	ActionSignal        Action = "signal"
	ActionViewport      Action = "viewport"
	ActionSubmitRequest Action = "submit_request"
	ActionSubmitConfirm Action = "submit_confirm"
	ActionPing          Action = "ping"
)

// ClientMessage is the single request shape for the exam stream. Fields
// beyond Action are action-specific and ignored otherwise.
type ClientMessage struct {
	Action Action `json:"action"`

	// answer / mark
	QID    string `json:"q_id,omitempty"`
	Answer string `json:"ans,omitempty"`

	// goto
	Index int `json:"index,omitempty"`

	// signal: raw browser event name (visibility_hidden, blur, ...)
	Signal string `json:"signal,omitempty"`

	// viewport: visualViewport heights for the keyboard heuristic
	ViewportHeight float64 `json:"viewport_h,omitempty"`
	WindowHeight   float64 `json:"window_h,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

// Session events are relayed verbatim from session.Event, which carries its
// own "type" discriminator. The shapes below cover the transport-level
// responses the handler produces itself.

type Event string

const (
	EventError Event = "error"
	EventPong  Event = "pong"
)

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
