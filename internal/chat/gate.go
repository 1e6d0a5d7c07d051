package chat

import (
	"context"
	"errors"
	"strings"

	"timechat/internal/api"
)

// Send submits a typed user message through the exchange gate. It blocks
// for the network round-trip; the incremental reveal of the response runs
// asynchronously after it returns. Between acceptance and the end of the
// reveal no second send is accepted.
func (c *Controller) Send(ctx context.Context, text string) error {
	return c.send(ctx, text, PhaseIdle)
}

// SendTranscribed submits recognized speech exactly as if the user had
// typed it. Only the audio pipeline calls this, from the transcribing
// phase.
func (c *Controller) SendTranscribed(ctx context.Context, text string) error {
	return c.send(ctx, text, PhaseTranscribing)
}

func (c *Controller) send(ctx context.Context, text string, from Phase) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sessionID == "" {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.state != StateActive || c.clock.Remaining() <= 0 {
		c.mu.Unlock()
		return ErrNoTimeRemaining
	}
	if c.phase != from {
		busy := ErrExchangeInFlight
		if c.phase == PhaseRecording || c.phase == PhaseTranscribing {
			busy = ErrRecordingInProgress
		}
		c.mu.Unlock()
		return busy
	}
	sess := c.sessionID
	tok, ok := c.locks.TryAcquire(sess)
	if !ok {
		// Title generation holds the exchange channel for this session.
		c.mu.Unlock()
		return ErrExchangeInFlight
	}
	c.history.AppendUser(text)
	placeholder := c.history.AppendAssistant("")
	c.placeholderID = placeholder.ID
	c.pendingUser = text
	c.lockToken = tok
	c.draft = ""
	first := c.firstMessagePending
	c.firstMessagePending = false
	c.phase = PhaseSending
	c.mu.Unlock()

	resp, err := c.backend.Respond(ctx, api.RespondRequest{
		SessionID:      sess,
		Content:        text,
		IsFirstMessage: first,
	})
	if err != nil {
		c.exchangeFailed(sess, placeholder.ID, tok, first, err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		// Teardown raced the round-trip; the result belongs to a disposed
		// conversation. The lock was held through the round-trip, so this is
		// the only release for it.
		c.mu.Unlock()
		c.locks.Release(sess, tok)
		return ErrClosed
	}
	c.phase = PhaseStreaming
	c.mu.Unlock()
	c.streamer.Start(placeholder.ID, resp.Content)
	return nil
}

// exchangeFailed unwinds an accepted send: the placeholder assistant
// message is removed (the user message stays), the in-flight lock is
// released, and the failure is classified per its kind.
func (c *Controller) exchangeFailed(sess, placeholderID string, tok uint64, first bool, err error) {
	c.history.Remove(placeholderID)
	c.locks.Release(sess, tok)

	c.mu.Lock()
	c.phase = PhaseIdle
	c.placeholderID = ""
	c.pendingUser = ""
	c.lockToken = 0
	if first {
		// The greeting exchange never happened; the next send is still the
		// session's first message.
		c.firstMessagePending = true
	}
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if errors.Is(err, api.ErrSessionExpired) {
		c.clock.Expire()
		c.handleExpired()
		return
	}
	c.notifier.Notify(NoticeError, "message could not be sent, please try again")
}

// streamApply is the streamer's per-prefix callback.
func (c *Controller) streamApply(messageID, content string) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.history.SetContent(messageID, content)
	if c.onAssistant != nil {
		c.onAssistant(messageID, content, false)
	}
}

// streamDone releases the in-flight lock once the reveal has finished and
// records the completed exchange.
func (c *Controller) streamDone(messageID, full string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	sess := c.sessionID
	user := c.pendingUser
	tok := c.lockToken
	c.pendingUser = ""
	c.placeholderID = ""
	c.lockToken = 0
	if c.phase == PhaseStreaming {
		c.phase = PhaseIdle
	}
	rec := c.recorder
	c.mu.Unlock()

	c.locks.Release(sess, tok)
	if rec != nil {
		if err := rec.AppendExchange(sess, user, full); err != nil {
			c.notifier.Notify(NoticeWarning, "exchange log write failed")
		}
	}
	if c.onAssistant != nil {
		c.onAssistant(messageID, full, true)
	}
}

// BeginRecording reserves the controller for audio capture. Rejected while
// an exchange is in flight or when no metered time remains.
func (c *Controller) BeginRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.sessionID == "" {
		return ErrNoSession
	}
	if c.state != StateActive || c.clock.Remaining() <= 0 {
		return ErrNoTimeRemaining
	}
	if c.phase != PhaseIdle {
		return ErrExchangeInFlight
	}
	c.phase = PhaseRecording
	return nil
}

// BeginTranscribing moves a finished recording into the transcribing
// phase; manual sends stay rejected until the pipeline releases it.
func (c *Controller) BeginTranscribing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseRecording {
		return ErrRecordingInProgress
	}
	c.phase = PhaseTranscribing
	return nil
}

// EndRecording releases a recording or transcribing reservation.
func (c *Controller) EndRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseRecording || c.phase == PhaseTranscribing {
		c.phase = PhaseIdle
	}
}
