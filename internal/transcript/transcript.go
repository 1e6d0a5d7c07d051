package transcript

import "time"

// Exchange records one completed request/response cycle of a session.
// Exchanges are appended in chronological order.
type Exchange struct {
	Timestamp         time.Time `json:"timestamp"`
	SessionID         string    `json:"session_id"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
}

// Recorder abstracts persistence of completed exchanges. Implementations
// must be safe for concurrent use.
type Recorder interface {
	AppendExchange(sessionID, userMessage, assistantResponse string) error
	LoadExchanges() ([]Exchange, error)
}
