package chat

import (
	"sync"
	"time"
)

// Streamer reveals an already fully-received response one rune at a time,
// emulating live generation. The reveal is client-side only: the final
// content always equals the received string exactly.
type Streamer struct {
	interval time.Duration
	apply    func(messageID, content string)
	done     func(messageID, full string)

	mu     sync.Mutex
	active map[string]chan struct{}
}

// NewStreamer creates a streamer. apply is called with successive prefixes,
// done once with the full text after the last prefix has been applied. Both
// callbacks run on the streamer's goroutine.
func NewStreamer(interval time.Duration, apply func(messageID, content string), done func(messageID, full string)) *Streamer {
	return &Streamer{
		interval: interval,
		apply:    apply,
		done:     done,
		active:   make(map[string]chan struct{}),
	}
}

// Start begins revealing full into the message with the given id. A reveal
// already running for the same id is cancelled first, so two reveals can
// never interleave on one message.
func (s *Streamer) Start(messageID, full string) {
	s.mu.Lock()
	if prev, ok := s.active[messageID]; ok {
		close(prev)
	}
	cancel := make(chan struct{})
	s.active[messageID] = cancel
	s.mu.Unlock()
	go s.run(messageID, full, cancel)
}

// Cancel stops the reveal for messageID, if any. The done callback is not
// invoked for a cancelled reveal.
func (s *Streamer) Cancel(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.active[messageID]; ok {
		close(c)
		delete(s.active, messageID)
	}
}

// CancelAll stops every active reveal. Called on controller teardown so no
// callback fires against a disposed conversation.
func (s *Streamer) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.active {
		close(c)
		delete(s.active, id)
	}
}

func (s *Streamer) run(messageID, full string, cancel chan struct{}) {
	runes := []rune(full)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for i := 1; i <= len(runes); i++ {
		select {
		case <-cancel:
			return
		case <-t.C:
			s.apply(messageID, string(runes[:i]))
		}
	}
	s.finish(messageID, full, cancel)
}

func (s *Streamer) finish(messageID, full string, cancel chan struct{}) {
	s.mu.Lock()
	// Only the reveal that still owns the slot may complete; a replaced or
	// cancelled run must stay silent.
	if cur, ok := s.active[messageID]; !ok || cur != cancel {
		s.mu.Unlock()
		return
	}
	delete(s.active, messageID)
	s.mu.Unlock()
	s.apply(messageID, full)
	if s.done != nil {
		s.done(messageID, full)
	}
}
