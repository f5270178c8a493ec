package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionViolation Action = "violation"
	ActionReturn    Action = "return"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// Request is the single client→server message shape. Fields beyond Action are
// populated per action: autosave carries item_id/value, violation carries
// kind/detail, return and submit and ping carry nothing extra.
type Request struct {
	Action Action `json:"action"`
	ItemID string `json:"item_id,omitempty"`
	Value  string `json:"value,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSaved   Event = "saved"
	EventWarning Event = "warning"
	EventGraded  Event = "graded"
	EventPong    Event = "pong"
)

// SavedResponse acknowledges one autosaved answer.
type SavedResponse struct {
	Event  Event  `json:"event"`
	ItemID string `json:"item_id"`
}

// WarningResponse is sent after a proctoring violation while the attempt is
// still alive. CountdownSeconds tells the client how long it has to return to
// secure mode before the attempt is force-submitted.
type WarningResponse struct {
	Event            Event   `json:"event"`
	Warnings         int     `json:"warnings"`
	MaxWarnings      int     `json:"max_warnings"`
	CountdownSeconds float64 `json:"countdown_seconds"`
}

// GradedResponse reports a finalized attempt. Forced marks submissions the
// proctor monitor triggered rather than the student.
type GradedResponse struct {
	Event  Event   `json:"event"`
	Status string  `json:"status"`
	Score  float64 `json:"score"`
	Forced bool    `json:"forced"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
