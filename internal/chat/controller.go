package chat

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"timechat/internal/api"
	"timechat/internal/clock"
)

var (
	ErrEmptyMessage        = errors.New("empty message")
	ErrNoSession           = errors.New("no active session")
	ErrNoTimeRemaining     = errors.New("no time remaining")
	ErrExchangeInFlight    = errors.New("exchange already in flight")
	ErrRecordingInProgress = errors.New("recording in progress")
	ErrNeedsPurchase       = errors.New("additional time must be purchased")
	ErrClosed              = errors.New("controller closed")
)

// Backend is the slice of the remote API the controller consumes.
type Backend interface {
	CreateSession(ctx context.Context, botID, username string) (string, error)
	Respond(ctx context.Context, req api.RespondRequest) (api.RespondResponse, error)
	CheckAccess(ctx context.Context) (api.AccessStatus, error)
	StartSession(ctx context.Context) (api.StartSessionResult, error)
	PurchaseSession(ctx context.Context) (api.PurchaseResult, error)
	History(ctx context.Context, sessionID string) ([]api.HistoryMessage, error)
}

// Recorder persists a completed exchange. Failures are logged, never
// surfaced: the transcript log is an audit artifact, not session state.
type Recorder interface {
	AppendExchange(sessionID, userMessage, assistantResponse string) error
}

// Options configures a Controller. Backend is required, everything else
// has a usable default.
type Options struct {
	Backend  Backend
	BotID    string
	Username string
	Notifier Notifier
	Locks    *ExchangeLock
	Recorder Recorder

	// SessionUnitMinutes is the purchased-allowance granularity used to
	// decide whether continuation can be offered after expiry.
	SessionUnitMinutes int

	StreamInterval time.Duration
	ClockInterval  time.Duration

	// OnAssistant observes assistant content as it is revealed; done is true
	// exactly once per exchange, when the full text is in place.
	OnAssistant func(messageID, content string, done bool)
	// OnTick observes each countdown decrement.
	OnTick func(remaining int)
	// OnStateChange observes session lifecycle transitions.
	OnStateChange func(state State)
}

// Controller orchestrates one conversation session: the countdown clock,
// the exchange gate, the response streamer and the recording phases. It is
// the single writer of the session's message history.
type Controller struct {
	mu       sync.Mutex
	backend  Backend
	notifier Notifier
	locks    *ExchangeLock
	recorder Recorder
	clock    *clock.Countdown
	streamer *Streamer
	history  *History

	botID       string
	username    string
	unitMinutes int

	onAssistant   func(messageID, content string, done bool)
	onStateChange func(State)

	sessionID           string
	state               State
	phase               Phase
	lockToken           uint64
	draft               string
	firstMessagePending bool
	availableMinutes    int
	placeholderID       string
	pendingUser         string
	cancelRecording     func()
	closed              bool
}

func NewController(opts Options) *Controller {
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	if opts.Locks == nil {
		opts.Locks = NewExchangeLock()
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = 30 * time.Millisecond
	}
	if opts.ClockInterval <= 0 {
		opts.ClockInterval = time.Second
	}
	if opts.SessionUnitMinutes <= 0 {
		opts.SessionUnitMinutes = 15
	}
	c := &Controller{
		backend:       opts.Backend,
		notifier:      opts.Notifier,
		locks:         opts.Locks,
		recorder:      opts.Recorder,
		history:       NewHistory(),
		botID:         opts.BotID,
		username:      opts.Username,
		unitMinutes:   opts.SessionUnitMinutes,
		onAssistant:   opts.OnAssistant,
		onStateChange: opts.OnStateChange,
		state:         StateIdle,
	}
	c.clock = clock.NewWithInterval(opts.ClockInterval, opts.OnTick, c.handleExpired)
	c.streamer = NewStreamer(opts.StreamInterval, c.streamApply, c.streamDone)
	return c
}

// StartNew creates a fresh session at the backend, starts its metered time
// and binds it to the controller.
func (c *Controller) StartNew(ctx context.Context) error {
	id, err := c.backend.CreateSession(ctx, c.botID, c.username)
	if err != nil {
		return err
	}
	res, err := c.backend.StartSession(ctx)
	if err != nil {
		return err
	}
	if res.NeedsPurchase {
		return ErrNeedsPurchase
	}
	if res.Error != "" {
		return &api.Error{Op: "start-session", Err: errors.New(res.Error)}
	}
	c.bind(id, res.RemainingTime, true)
	return nil
}

// Attach binds an existing session, loading its history from the backend.
// remainingSeconds < 0 means "unknown": the access collaborator is asked.
func (c *Controller) Attach(ctx context.Context, sessionID string, remainingSeconds int) error {
	if sessionID == "" {
		return ErrNoSession
	}
	if remainingSeconds < 0 {
		st, err := c.backend.CheckAccess(ctx)
		if err != nil {
			return err
		}
		remainingSeconds = st.RemainingTime
	}
	msgs, err := c.backend.History(ctx, sessionID)
	if err != nil {
		return err
	}
	c.history.Load(msgs)
	c.bind(sessionID, remainingSeconds, c.history.Len() == 0)
	return nil
}

func (c *Controller) bind(sessionID string, remainingSeconds int, first bool) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.firstMessagePending = first
	c.setStateLocked(StateActive)
	c.mu.Unlock()
	c.clock.Start(remainingSeconds)
}

// handleExpired runs when the clock reaches zero (or when the server
// declares the session over mid-exchange).
func (c *Controller) handleExpired() {
	c.mu.Lock()
	if c.closed || c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateExpiring)
	c.mu.Unlock()
	go c.resolveExpiry()
}

// resolveExpiry asks the access collaborator whether continuation is
// possible and settles the Expiring state.
func (c *Controller) resolveExpiry() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	st, err := c.backend.CheckAccess(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state != StateExpiring {
		return
	}
	if err != nil {
		log.Printf("access check after expiry failed: %v", err)
		c.setStateLocked(StateExpiredTerminal)
		return
	}
	c.availableMinutes = st.AvailableMinutes
	if st.Access && st.AvailableMinutes >= c.unitMinutes {
		c.setStateLocked(StateContinuationOffered)
	} else {
		c.setStateLocked(StateExpiredTerminal)
	}
}

// AcceptContinuation resumes an expired session after the user agreed to
// spend another allowance unit.
func (c *Controller) AcceptContinuation(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateContinuationOffered {
		c.mu.Unlock()
		return ErrNoTimeRemaining
	}
	c.mu.Unlock()

	res, err := c.backend.StartSession(ctx)
	if err != nil {
		return err
	}
	if res.NeedsPurchase {
		c.mu.Lock()
		c.setStateLocked(StateExpiredTerminal)
		c.mu.Unlock()
		return ErrNeedsPurchase
	}
	if res.Error != "" {
		return &api.Error{Op: "start-session", Err: errors.New(res.Error)}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.setStateLocked(StateActive)
	c.mu.Unlock()
	c.clock.Start(res.RemainingTime)
	return nil
}

// DeclineContinuation settles a continuation offer as terminal expiry.
func (c *Controller) DeclineContinuation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateContinuationOffered {
		c.setStateLocked(StateExpiredTerminal)
	}
}

// Purchase buys further allowance through the access collaborator. When the
// purchase makes a full session unit available, a pending terminal expiry
// is upgraded back to a continuation offer.
func (c *Controller) Purchase(ctx context.Context) (api.PurchaseResult, error) {
	res, err := c.backend.PurchaseSession(ctx)
	if err != nil {
		return api.PurchaseResult{}, err
	}
	c.mu.Lock()
	c.availableMinutes = res.AvailableMinutes
	if c.state == StateExpiredTerminal && res.AvailableMinutes >= c.unitMinutes {
		c.setStateLocked(StateContinuationOffered)
	}
	c.mu.Unlock()
	return res, nil
}

// Close tears the controller down: clock, streamer and any pending
// recording are cancelled synchronously, and no callback will mutate state
// afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sess := c.sessionID
	// While a round-trip is still outstanding (PhaseSending) the lock must
	// stay held until Respond returns; the send path's closed branch releases
	// it then. Only a finished round-trip mid-reveal is released here, since
	// cancelling the streamer suppresses its completion callback.
	releaseLock := c.phase == PhaseStreaming && c.lockToken != 0
	tok := c.lockToken
	if releaseLock {
		c.lockToken = 0
	}
	cancelRec := c.cancelRecording
	c.phase = PhaseIdle
	c.placeholderID = ""
	c.pendingUser = ""
	c.mu.Unlock()

	c.clock.Stop()
	c.streamer.CancelAll()
	if cancelRec != nil {
		cancelRec()
	}
	if releaseLock && sess != "" {
		c.locks.Release(sess, tok)
	}
}

// SetRecordingCanceller registers the audio pipeline's teardown hook so
// Close can abort an in-progress recording.
func (c *Controller) SetRecordingCanceller(cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelRecording = cancel
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onStateChange != nil {
		go c.onStateChange(s)
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) Remaining() int { return c.clock.Remaining() }

func (c *Controller) AvailableMinutes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.availableMinutes
}

// Messages returns the user-facing messages of the bound session.
func (c *Controller) Messages() []Message { return c.history.Visible() }

// Draft holds client-side text not yet sent; an accepted send clears it.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}
