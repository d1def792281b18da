package domain

import "time"

// SessionState represents the lifecycle state of a download session
type SessionState string

const (
	StateCreated              SessionState = "created"
	StateProbing              SessionState = "probing"
	StateAuthRetry            SessionState = "auth_retry"
	StateAwaitingConfirmation SessionState = "awaiting_confirmation"
	StateFetching             SessionState = "fetching"
	StateFinalizing           SessionState = "finalizing"
	StateFinished             SessionState = "finished"
	StateFailed               SessionState = "failed"
	StateCancelled            SessionState = "cancelled"
)

// stateRank orders states along the forward path. Terminal states share the top rank.
var stateRank = map[SessionState]int{
	StateCreated:              0,
	StateProbing:              1,
	StateAuthRetry:            2,
	StateAwaitingConfirmation: 3,
	StateFetching:             4,
	StateFinalizing:           5,
	StateFinished:             6,
	StateFailed:               6,
	StateCancelled:            6,
}

// IsTerminal checks if the state is terminal
func (s SessionState) IsTerminal() bool {
	return s == StateFinished || s == StateFailed || s == StateCancelled
}

// CanAdvance reports whether a session may move from s to next. Moves only go
// forward, except auth_retry which hands control back to probing.
func (s SessionState) CanAdvance(next SessionState) bool {
	if s.IsTerminal() {
		return false
	}
	if s == StateAuthRetry && next == StateProbing {
		return true
	}
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[next]
	if !ok {
		return false
	}
	return to > from
}

// EventType identifies a notification emitted by a session
type EventType string

const (
	EventState                 EventType = "state"
	EventProgress              EventType = "progress"
	EventAuthRequested         EventType = "auth_requested"
	EventAuthNotice            EventType = "auth_notice"
	EventConfirmationRequested EventType = "confirmation_requested"
	EventConfirmationResolved  EventType = "confirmation_resolved"
	EventFinished              EventType = "finished"
	EventFailed                EventType = "failed"
	EventCancelled             EventType = "cancelled"
)

// IsTerminal checks if the event ends a session's event stream
func (t EventType) IsTerminal() bool {
	return t == EventFinished || t == EventFailed || t == EventCancelled
}

// Event is a progress or lifecycle notification of one session
type Event struct {
	SessionID    string               `json:"session_id"`
	Type         EventType            `json:"type"`
	State        SessionState         `json:"state,omitempty"`
	Percent      float64              `json:"percent,omitempty"`
	Browser      string               `json:"browser,omitempty"`
	SignInURL    string               `json:"sign_in_url,omitempty"`
	Confirmation *ConfirmationRequest `json:"confirmation,omitempty"`
	Decision     Decision             `json:"decision,omitempty"`
	Path         string               `json:"path,omitempty"`
	Message      string               `json:"message,omitempty"`
	Neutral      bool                 `json:"neutral,omitempty"`
	Err          error                `json:"-"`
	Time         time.Time            `json:"time"`
}

// Decision is the answer to a confirmation request
type Decision string

const (
	DecisionYes      Decision = "yes"
	DecisionNo       Decision = "no"
	DecisionTimedOut Decision = "timed_out"
)

// ConfirmationRequest asks a human whether an existing file may be replaced
type ConfirmationRequest struct {
	File       string   `json:"file"`
	Duplicates []string `json:"duplicates,omitempty"`
}

// AuthSession records one interactive browser sign-in attempt
type AuthSession struct {
	Browser   BrowserIdentity
	StartedAt time.Time
	Completed bool
	Cookies   []Cookie
	Err       error
}

// Elapsed returns how long the attempt has been running
func (a *AuthSession) Elapsed(now time.Time) time.Duration {
	return now.Sub(a.StartedAt)
}
