package chat

import "log"

// NoticeKind classifies transient user-facing notices.
type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticeWarning NoticeKind = "warning"
	NoticeInfo    NoticeKind = "info"
)

// Notifier surfaces transient, auto-dismissing notices. Implementations
// must not block.
type Notifier interface {
	Notify(kind NoticeKind, text string)
}

// LogNotifier writes notices to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(kind NoticeKind, text string) {
	switch kind {
	case NoticeError:
		log.Printf("❌ %s", text)
	case NoticeWarning:
		log.Printf("⚠️ %s", text)
	default:
		log.Printf("ℹ️ %s", text)
	}
}
