package chat

import (
	"sync"
	"testing"
	"time"
)

type streamSink struct {
	mu      sync.Mutex
	content map[string]string
	done    map[string]int
}

func newStreamSink() *streamSink {
	return &streamSink{content: make(map[string]string), done: make(map[string]int)}
}

func (s *streamSink) apply(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[id] = content
}

func (s *streamSink) finish(id, full string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done[id]++
}

func (s *streamSink) get(id string) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content[id], s.done[id]
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestStreamerRevealsExactText(t *testing.T) {
	sink := newStreamSink()
	s := NewStreamer(time.Millisecond, sink.apply, sink.finish)

	full := "سلام! how can I help? 😊"
	s.Start("m1", full)

	waitUntil(t, 2*time.Second, func() bool {
		_, done := sink.get("m1")
		return done == 1
	})
	content, done := sink.get("m1")
	if content != full {
		t.Fatalf("final content = %q, want %q", content, full)
	}
	if done != 1 {
		t.Fatalf("done fired %d times, want 1", done)
	}
}

func TestStreamerEmptyText(t *testing.T) {
	sink := newStreamSink()
	s := NewStreamer(time.Millisecond, sink.apply, sink.finish)

	s.Start("m1", "")
	waitUntil(t, time.Second, func() bool {
		_, done := sink.get("m1")
		return done == 1
	})
	if content, _ := sink.get("m1"); content != "" {
		t.Fatalf("content = %q, want empty", content)
	}
}

func TestStreamerCancelSuppressesCompletion(t *testing.T) {
	sink := newStreamSink()
	s := NewStreamer(5*time.Millisecond, sink.apply, sink.finish)

	s.Start("m1", "a long response that will not finish quickly at all")
	time.Sleep(12 * time.Millisecond)
	s.Cancel("m1")
	time.Sleep(50 * time.Millisecond)

	content, done := sink.get("m1")
	if done != 0 {
		t.Fatalf("done fired %d times after cancel, want 0", done)
	}
	if content == "a long response that will not finish quickly at all" {
		t.Fatalf("cancelled reveal still completed")
	}
}

func TestStreamerRestartReplacesReveal(t *testing.T) {
	sink := newStreamSink()
	s := NewStreamer(time.Millisecond, sink.apply, sink.finish)

	s.Start("m1", "first version of the text")
	s.Start("m1", "second")

	waitUntil(t, 2*time.Second, func() bool {
		content, done := sink.get("m1")
		return done >= 1 && content == "second"
	})
	time.Sleep(40 * time.Millisecond)
	content, done := sink.get("m1")
	if content != "second" {
		t.Fatalf("final content = %q, want %q", content, "second")
	}
	if done != 1 {
		t.Fatalf("done fired %d times, want 1", done)
	}
}

func TestStreamerCancelAll(t *testing.T) {
	sink := newStreamSink()
	s := NewStreamer(5*time.Millisecond, sink.apply, sink.finish)

	s.Start("m1", "one response")
	s.Start("m2", "another response")
	s.CancelAll()
	time.Sleep(50 * time.Millisecond)

	if _, done := sink.get("m1"); done != 0 {
		t.Fatalf("m1 completed after CancelAll")
	}
	if _, done := sink.get("m2"); done != 0 {
		t.Fatalf("m2 completed after CancelAll")
	}
}
