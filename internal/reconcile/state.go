package reconcile

import "time"

// State is the sync state of the engine.
type State int

const (
	Unauthenticated State = iota
	Initializing
	Synchronized
	Error
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Initializing:
		return "initializing"
	case Synchronized:
		return "synchronized"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Phase guards initialization against concurrent or repeated runs.
type Phase int

const (
	NotStarted Phase = iota
	InProgress
	Done
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Status is a point-in-time view of the engine.
type Status struct {
	State         State     `json:"state"`
	Phase         Phase     `json:"phase"`
	UserID        string    `json:"user_id,omitempty"`
	Subscribed    bool      `json:"subscribed"`
	PendingWrites int       `json:"pending_writes"`
	Provisional   bool      `json:"provisional"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorAt   time.Time `json:"last_error_at"`
	SyncedAt      time.Time `json:"synced_at"`
}
