package recording

// State is the lifecycle position of a [Session].
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateCapturing
	StateAwaitingMinimumDuration
	StateFinalizing
	StateCompleted
	StateCancelled
	StateFailed
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateCapturing:
		return "capturing"
	case StateAwaitingMinimumDuration:
		return "awaiting_minimum_duration"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// cancellable reports whether Cancel may move a session out of s.
func (s State) cancellable() bool {
	return s == StatePreparing || s == StateCapturing || s == StateAwaitingMinimumDuration
}
