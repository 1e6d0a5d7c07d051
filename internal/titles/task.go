// Package titles derives short human-readable labels for past sessions.
// Each session is titled exactly once: a durable marker prevents
// reprocessing across restarts, and a single worker consumes a persisted
// queue one task at a time.
package titles

import "time"

// Status is the durable per-session marker. Transitions are monotone:
// none → queued → generated. A failed generation still ends at generated
// (with a fallback title) so no task stays retryable forever.
type Status string

const (
	StatusNone      Status = ""
	StatusQueued    Status = "queued"
	StatusGenerated Status = "generated"
)

// Durable store keys. One marker and one cached title per session, plus a
// single snapshot of the pending queue.
const (
	markerKeyPrefix = "title_status_"
	titleKeyPrefix  = "chat_title_"
	queueKey        = "title_generation_queue"
)

func markerKey(sessionID string) string { return markerKeyPrefix + sessionID }
func titleKey(sessionID string) string  { return titleKeyPrefix + sessionID }

// ContextMessage is one conversation line used as title-generation
// context. System and naming-prompt messages never appear here.
type ContextMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is one queued title-generation job.
type Task struct {
	SessionID  string           `json:"session_id"`
	Context    []ContextMessage `json:"context"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}

// maxContextMessages bounds the context sent to the backend.
const maxContextMessages = 5
