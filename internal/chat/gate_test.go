package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timechat/internal/api"
)

type fakeBackend struct {
	mu        sync.Mutex
	requests  []api.RespondRequest
	respondFn func(api.RespondRequest) (api.RespondResponse, error)
	accessFn  func() (api.AccessStatus, error)
	startFn   func() (api.StartSessionResult, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		respondFn: func(api.RespondRequest) (api.RespondResponse, error) {
			return api.RespondResponse{Content: "ok"}, nil
		},
		accessFn: func() (api.AccessStatus, error) {
			return api.AccessStatus{Access: true, RemainingTime: 60, AvailableMinutes: 30}, nil
		},
		startFn: func() (api.StartSessionResult, error) {
			return api.StartSessionResult{RemainingTime: 60}, nil
		},
	}
}

func (f *fakeBackend) CreateSession(context.Context, string, string) (string, error) {
	return "sess-1", nil
}

func (f *fakeBackend) Respond(_ context.Context, req api.RespondRequest) (api.RespondResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.respondFn
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeBackend) CheckAccess(context.Context) (api.AccessStatus, error) {
	f.mu.Lock()
	fn := f.accessFn
	f.mu.Unlock()
	return fn()
}

func (f *fakeBackend) StartSession(context.Context) (api.StartSessionResult, error) {
	f.mu.Lock()
	fn := f.startFn
	f.mu.Unlock()
	return fn()
}

func (f *fakeBackend) PurchaseSession(context.Context) (api.PurchaseResult, error) {
	return api.PurchaseResult{Message: "ok", AvailableMinutes: 30}, nil
}

func (f *fakeBackend) History(context.Context, string) ([]api.HistoryMessage, error) {
	return nil, nil
}

func (f *fakeBackend) respondRequests() []api.RespondRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.RespondRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

type memoNotifier struct {
	mu      sync.Mutex
	notices []NoticeKind
}

func (n *memoNotifier) Notify(kind NoticeKind, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, kind)
}

func (n *memoNotifier) count(kind NoticeKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, k := range n.notices {
		if k == kind {
			c++
		}
	}
	return c
}

func newTestController(backend Backend, notifier Notifier) *Controller {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return NewController(Options{
		Backend:            backend,
		BotID:              "bot-1",
		Notifier:           notifier,
		SessionUnitMinutes: 15,
		StreamInterval:     time.Millisecond,
		ClockInterval:      time.Hour,
	})
}

func TestSendHappyPath(t *testing.T) {
	backend := newFakeBackend()
	c := newTestController(backend, nil)
	defer c.Close()

	if err := c.StartNew(context.Background()); err != nil {
		t.Fatalf("StartNew: %v", err)
	}
	c.SetDraft("hello")
	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if c.Draft() != "" {
		t.Fatalf("draft not cleared on accepted send")
	}

	waitUntil(t, 2*time.Second, func() bool { return c.Phase() == PhaseIdle })
	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Sender != SenderUser || msgs[0].Content != "hello" {
		t.Fatalf("unexpected user message: %+v", msgs[0])
	}
	if msgs[1].Sender != SenderAssistant || msgs[1].Content != "ok" {
		t.Fatalf("unexpected assistant message: %+v", msgs[1])
	}

	reqs := backend.respondRequests()
	if len(reqs) != 1 || !reqs[0].IsFirstMessage {
		t.Fatalf("first exchange not flagged as first message: %+v", reqs)
	}

	if err := c.Send(context.Background(), "second"); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return c.Phase() == PhaseIdle })
	reqs = backend.respondRequests()
	if len(reqs) != 2 || reqs[1].IsFirstMessage {
		t.Fatalf("second exchange wrongly flagged as first: %+v", reqs)
	}
}

func TestSendRejections(t *testing.T) {
	backend := newFakeBackend()
	c := newTestController(backend, nil)
	defer c.Close()

	if err := c.Send(context.Background(), "hi"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("send without session = %v, want ErrNoSession", err)
	}
	if err := c.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("send of blank text = %v, want ErrEmptyMessage", err)
	}
}

func TestSingleExchangeInFlight(t *testing.T) {
	backend := newFakeBackend()
	release := make(chan struct{})
	backend.respondFn = func(api.RespondRequest) (api.RespondResponse, error) {
		<-release
		return api.RespondResponse{Content: "slow"}, nil
	}
	c := newTestController(backend, nil)
	defer c.Close()
	if err := c.StartNew(context.Background()); err != nil {
		t.Fatalf("StartNew: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- c.Send(context.Background(), "first") }()
	waitUntil(t, 2*time.Second, func() bool { return c.Phase() == PhaseSending })

	if err := c.Send(context.Background(), "second"); !errors.Is(err, ErrExchangeInFlight) {
		t.Fatalf("overlapping send = %v, want ErrExchangeInFlight", err)
	}
	if err := c.BeginRecording(); !errors.Is(err, ErrExchangeInFlight) {
		t.Fatalf("recording during exchange = %v, want ErrExchangeInFlight", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return c.Phase() == PhaseIdle })

	// Streaming finished: the gate accepts again.
	if err := c.Send(context.Background(), "third"); err != nil {
		t.Fatalf("send after completion: %v", err)
	}
}

func TestSendFailureRemovesPlaceholder(t *testing.T) {
	backend := newFakeBackend()
	backend.respondFn = func(api.RespondRequest) (api.RespondResponse, error) {
		return api.RespondResponse{}, &api.Error{Op: "respond", StatusCode: 502}
	}
	notifier := &memoNotifier{}
	c := newTestController(backend, notifier)
	defer c.Close()
	if err := c.StartNew(context.Background()); err != nil {
		t.Fatalf("StartNew: %v", err)
	}

	err := c.Send(context.Background(), "hello")
	if !api.IsNetwork(err) {
		t.Fatalf("send error = %v, want network error", err)
	}

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Content != "hello" || msgs[0].Sender != SenderUser {
		t.Fatalf("history after failure = %+v, want only the user message", msgs)
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("phase after failure = %v, want idle", c.Phase())
	}
	if notifier.count(NoticeError) != 1 {
		t.Fatalf("expected one transient error notice")
	}

	// The in-flight lock is released: the next send is accepted.
	backend.mu.Lock()
	backend.respondFn = func(api.RespondRequest) (api.RespondResponse, error) {
		return api.RespondResponse{Content: "ok"}, nil
	}
	backend.mu.Unlock()
	if err := c.Send(context.Background(), "retry"); err != nil {
		t.Fatalf("send after failure: %v", err)
	}
	reqs := backend.respondRequests()
	if !reqs[len(reqs)-1].IsFirstMessage {
		t.Fatalf("failed greeting should leave the next send flagged first")
	}
}

func TestSessionEndedSignal(t *testing.T) {
	backend := newFakeBackend()
	backend.respondFn = func(api.RespondRequest) (api.RespondResponse, error) {
		return api.RespondResponse{SessionEnded: true}, api.ErrSessionExpired
	}
	backend.accessFn = func() (api.AccessStatus, error) {
		return api.AccessStatus{Access: false, AvailableMinutes: 0}, nil
	}
	c := newTestController(backend, &memoNotifier{})
	defer c.Close()
	if err := c.StartNew(context.Background()); err != nil {
		t.Fatalf("StartNew: %v", err)
	}

	if err := c.Send(context.Background(), "hello"); !errors.Is(err, api.ErrSessionExpired) {
		t.Fatalf("send = %v, want ErrSessionExpired", err)
	}
	if got := c.Remaining(); got != 0 {
		t.Fatalf("remaining = %d, want 0 after expiry signal", got)
	}
	waitUntil(t, 2*time.Second, func() bool { return c.State() == StateExpiredTerminal })

	if err := c.Send(context.Background(), "more"); !errors.Is(err, ErrNoTimeRemaining) {
		t.Fatalf("send after expiry = %v, want ErrNoTimeRemaining", err)
	}
}

func TestExpiryOffersContinuation(t *testing.T) {
	backend := newFakeBackend()
	c := NewController(Options{
		Backend:            backend,
		BotID:              "bot-1",
		SessionUnitMinutes: 15,
		StreamInterval:     time.Millisecond,
		ClockInterval:      2 * time.Millisecond,
	})
	defer c.Close()

	backend.startFn = func() (api.StartSessionResult, error) {
		return api.StartSessionResult{RemainingTime: 5}, nil
	}
	if err := c.StartNew(context.Background()); err != nil {
		t.Fatalf("StartNew: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool { return c.State() == StateContinuationOffered })

	backend.mu.Lock()
	backend.startFn = func() (api.StartSessionResult, error) {
		return api.StartSessionResult{RemainingTime: 600}, nil
	}
	backend.mu.Unlock()
	if err := c.AcceptContinuation(context.Background()); err != nil {
		t.Fatalf("AcceptContinuation: %v", err)
	}
	if c.State() != StateActive {
		t.Fatalf("state after continuation = %v, want active", c.State())
	}
	if c.Remaining() == 0 {
		t.Fatalf("remaining not refreshed after continuation")
	}
}

func TestExpiryTerminalWithoutAllowance(t *testing.T) {
	backend := newFakeBackend()
	backend.accessFn = func() (api.AccessStatus, error) {
		return api.AccessStatus{Access: true, AvailableMinutes: 5}, nil
	}
	backend.startFn = func() (api.StartSessionResult, error) {
		return api.StartSessionResult{RemainingTime: 3}, nil
	}
	c := NewController(Options{
		Backend:            backend,
		BotID:              "bot-1",
		SessionUnitMinutes: 15,
		ClockInterval:      2 * time.Millisecond,
	})
	defer c.Close()

	if err := c.StartNew(context.Background()); err != nil {
		t.Fatalf("StartNew: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return c.State() == StateExpiredTerminal })

	if err := c.AcceptContinuation(context.Background()); !errors.Is(err, ErrNoTimeRemaining) {
		t.Fatalf("continuation without offer = %v, want ErrNoTimeRemaining", err)
	}
}

func TestRecordingBlocksSend(t *testing.T) {
	backend := newFakeBackend()
	c := newTestController(backend, nil)
	defer c.Close()
	if err := c.StartNew(context.Background()); err != nil {
		t.Fatalf("StartNew: %v", err)
	}

	if err := c.BeginRecording(); err != nil {
		t.Fatalf("BeginRecording: %v", err)
	}
	if err := c.Send(context.Background(), "typed"); !errors.Is(err, ErrRecordingInProgress) {
		t.Fatalf("send while recording = %v, want ErrRecordingInProgress", err)
	}
	if err := c.BeginTranscribing(); err != nil {
		t.Fatalf("BeginTranscribing: %v", err)
	}
	if err := c.SendTranscribed(context.Background(), "spoken words"); err != nil {
		t.Fatalf("SendTranscribed: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return c.Phase() == PhaseIdle })

	msgs := c.Messages()
	if len(msgs) != 2 || msgs[0].Content != "spoken words" {
		t.Fatalf("transcribed text not sent as typed input: %+v", msgs)
	}
}

func TestTitleLockBlocksSend(t *testing.T) {
	backend := newFakeBackend()
	locks := NewExchangeLock()
	c := NewController(Options{
		Backend:        backend,
		BotID:          "bot-1",
		Locks:          locks,
		StreamInterval: time.Millisecond,
		ClockInterval:  time.Hour,
	})
	defer c.Close()
	if err := c.StartNew(context.Background()); err != nil {
		t.Fatalf("StartNew: %v", err)
	}

	tok, ok := locks.TryAcquire(c.SessionID())
	if !ok {
		t.Fatalf("could not take exchange lock")
	}
	if err := c.Send(context.Background(), "hello"); !errors.Is(err, ErrExchangeInFlight) {
		t.Fatalf("send with held exchange lock = %v, want ErrExchangeInFlight", err)
	}
	locks.Release(c.SessionID(), tok)
	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send after release: %v", err)
	}
}

func TestCloseKeepsLockDuringRoundTrip(t *testing.T) {
	backend := newFakeBackend()
	release := make(chan struct{})
	backend.respondFn = func(api.RespondRequest) (api.RespondResponse, error) {
		<-release
		return api.RespondResponse{Content: "late"}, nil
	}
	locks := NewExchangeLock()
	c := NewController(Options{
		Backend:        backend,
		BotID:          "bot-1",
		Locks:          locks,
		StreamInterval: time.Millisecond,
		ClockInterval:  time.Hour,
	})
	if err := c.StartNew(context.Background()); err != nil {
		t.Fatalf("StartNew: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- c.Send(context.Background(), "hello") }()
	waitUntil(t, 2*time.Second, func() bool { return c.Phase() == PhaseSending })
	c.Close()

	// The round-trip is still outstanding: the exchange channel must not be
	// up for grabs, or a title request could interleave with the live
	// exchange.
	if _, ok := locks.TryAcquire(c.SessionID()); ok {
		t.Fatalf("exchange lock acquirable while the round-trip is still in flight")
	}

	close(release)
	if err := <-errCh; !errors.Is(err, ErrClosed) {
		t.Fatalf("late exchange result = %v, want ErrClosed", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return !locks.Held(c.SessionID()) })
}

func TestCloseTearsDownSynchronously(t *testing.T) {
	backend := newFakeBackend()
	release := make(chan struct{})
	backend.respondFn = func(api.RespondRequest) (api.RespondResponse, error) {
		<-release
		return api.RespondResponse{Content: "late"}, nil
	}
	c := newTestController(backend, nil)
	if err := c.StartNew(context.Background()); err != nil {
		t.Fatalf("StartNew: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- c.Send(context.Background(), "hello") }()
	waitUntil(t, 2*time.Second, func() bool { return c.Phase() == PhaseSending })

	cancelled := false
	c.SetRecordingCanceller(func() { cancelled = true })
	c.Close()
	if !cancelled {
		t.Fatalf("teardown did not cancel the recording pipeline")
	}

	close(release)
	if err := <-errCh; !errors.Is(err, ErrClosed) {
		t.Fatalf("late exchange result = %v, want ErrClosed", err)
	}
	before := len(c.Messages())
	time.Sleep(20 * time.Millisecond)
	if len(c.Messages()) != before {
		t.Fatalf("history mutated after Close")
	}
}
