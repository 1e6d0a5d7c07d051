package chat

// State is the session lifecycle of one controller instance.
type State int

const (
	// StateIdle means no session is bound yet.
	StateIdle State = iota
	StateActive
	// StateExpiring means the clock hit zero and the access collaborator is
	// being asked whether continuation is possible.
	StateExpiring
	StateExpiredTerminal
	StateContinuationOffered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateExpiring:
		return "expiring"
	case StateExpiredTerminal:
		return "expired"
	case StateContinuationOffered:
		return "continuation_offered"
	}
	return "unknown"
}

// Phase is the exchange/recording activity of one controller instance.
// All mutual-exclusion rules (one exchange in flight, no send while
// recording, no recording while sending) reduce to transitions on this
// single value, validated in one place.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseStreaming
	PhaseRecording
	PhaseTranscribing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	case PhaseRecording:
		return "recording"
	case PhaseTranscribing:
		return "transcribing"
	}
	return "unknown"
}
