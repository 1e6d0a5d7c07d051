package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"timechat/internal/api"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Kind mirrors the backend message discriminator. System and naming-prompt
// entries never reach user-facing rendering or title-generation context.
type Kind string

const (
	KindUser   Kind = Kind(api.MessageTypeUser)
	KindAI     Kind = Kind(api.MessageTypeAI)
	KindSystem Kind = Kind(api.MessageTypeSystem)
	KindNaming Kind = Kind(api.MessageTypeNaming)
)

type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Visible reports whether the message belongs in user-facing rendering.
func (m Message) Visible() bool {
	return m.Kind == KindUser || m.Kind == KindAI
}

// History is the append-only ordered message sequence of one session. The
// controller is its only writer; the streamer mutates exactly one entry (the
// in-progress assistant message) through SetContent.
type History struct {
	mu   sync.RWMutex
	msgs []Message
}

func NewHistory() *History { return &History{} }

func (h *History) AppendUser(content string) Message {
	return h.append(Message{Sender: SenderUser, Kind: KindUser, Content: content})
}

// AppendAssistant appends an assistant message, typically the empty
// placeholder that streaming later fills in.
func (h *History) AppendAssistant(content string) Message {
	return h.append(Message{Sender: SenderAssistant, Kind: KindAI, Content: content})
}

func (h *History) append(m Message) Message {
	m.ID = uuid.NewString()
	m.Timestamp = time.Now().UTC()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, m)
	return m
}

// Load replaces the history with messages fetched from the backend.
func (h *History) Load(msgs []api.HistoryMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = h.msgs[:0]
	for _, m := range msgs {
		sender := SenderAssistant
		if m.Type == api.MessageTypeUser {
			sender = SenderUser
		}
		h.msgs = append(h.msgs, Message{
			ID:        uuid.NewString(),
			Sender:    sender,
			Kind:      Kind(m.Type),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
}

// SetContent replaces the content of the message with the given id.
func (h *History) SetContent(id, content string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.msgs {
		if h.msgs[i].ID == id {
			h.msgs[i].Content = content
			return true
		}
	}
	return false
}

// Remove deletes the message with the given id. Used only to clean up a
// placeholder after a failed exchange.
func (h *History) Remove(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.msgs {
		if h.msgs[i].ID == id {
			h.msgs = append(h.msgs[:i], h.msgs[i+1:]...)
			return true
		}
	}
	return false
}

func (h *History) Get(id string) (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.msgs {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Visible returns the user-facing messages in order.
func (h *History) Visible() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, 0, len(h.msgs))
	for _, m := range h.msgs {
		if m.Visible() {
			out = append(out, m)
		}
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs)
}

func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = nil
}
