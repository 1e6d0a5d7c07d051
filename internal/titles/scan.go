package titles

import (
	"context"
	"log"
	"time"

	"timechat/internal/api"
)

// Backend is the slice of the remote API the scanner consumes.
type Backend interface {
	ListSessions(ctx context.Context, userID string, page, size int) ([]api.SessionInfo, error)
	History(ctx context.Context, sessionID string) ([]api.HistoryMessage, error)
}

// Listing is one past session as shown in a session list.
type Listing struct {
	ID              string
	Title           string
	StartDate       time.Time
	LastMessageTime time.Time
}

// Scanner retrieves past sessions and feeds untitled ones into the title
// queue. Retrieving a list page is what triggers title generation.
type Scanner struct {
	backend  Backend
	queue    *Queue
	userID   string
	pageSize int
}

func NewScanner(backend Backend, queue *Queue, userID string, pageSize int) *Scanner {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Scanner{backend: backend, queue: queue, userID: userID, pageSize: pageSize}
}

// List fetches one page of past sessions, resolves each title from the
// cache and enqueues a title task for every session that has none yet.
func (s *Scanner) List(ctx context.Context, page int) ([]Listing, error) {
	sessions, err := s.backend.ListSessions(ctx, s.userID, page, s.pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]Listing, 0, len(sessions))
	for _, info := range sessions {
		l := Listing{
			ID:              info.ID,
			Title:           s.queue.Title(ctx, info.ID),
			StartDate:       info.StartDate,
			LastMessageTime: info.StartDate,
		}
		if last, ok := s.inspect(ctx, info.ID); ok {
			l.LastMessageTime = last
		}
		out = append(out, l)
	}
	return out, nil
}

// inspect loads one session's messages for the listing's last-message time
// and enqueues a title task for a session with no generated title yet. The
// marker gates only the enqueue decision, never the listing data.
func (s *Scanner) inspect(ctx context.Context, sessionID string) (time.Time, bool) {
	msgs, err := s.backend.History(ctx, sessionID)
	if err != nil {
		log.Printf("fetch session %s: %v", sessionID, err)
		return time.Time{}, false
	}
	var last time.Time
	ctxMsgs := make([]ContextMessage, 0, maxContextMessages)
	for _, m := range msgs {
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
		// System and naming-prompt entries are excluded from title context.
		if m.Type != api.MessageTypeUser && m.Type != api.MessageTypeAI {
			continue
		}
		if len(ctxMsgs) < maxContextMessages {
			role := "assistant"
			if m.Type == api.MessageTypeUser {
				role = "user"
			}
			ctxMsgs = append(ctxMsgs, ContextMessage{Role: role, Content: m.Content, Timestamp: m.Timestamp})
		}
	}
	if len(ctxMsgs) > 0 && s.queue.Status(ctx, sessionID) != StatusGenerated {
		if err := s.queue.Enqueue(ctx, sessionID, ctxMsgs); err != nil {
			log.Printf("enqueue title task for %s: %v", sessionID, err)
		}
	}
	return last, !last.IsZero()
}

// ScanAll walks list pages until an empty page. Driven by the cron
// scheduler so titles appear even when no list view is opened.
func (s *Scanner) ScanAll(ctx context.Context) error {
	for page := 0; ; page++ {
		sessions, err := s.backend.ListSessions(ctx, s.userID, page, s.pageSize)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return nil
		}
		for _, info := range sessions {
			s.inspect(ctx, info.ID)
		}
		if len(sessions) < s.pageSize {
			return nil
		}
	}
}
