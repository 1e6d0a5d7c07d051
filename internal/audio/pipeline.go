package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"timechat/internal/chat"
)

type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
)

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	// ErrCaptureUnavailable wraps capture-device acquisition failures.
	ErrCaptureUnavailable = errors.New("capture device unavailable")
)

// Transcriber converts a finished audio payload into text. An empty result
// with a nil error means nothing was recognized. Implemented by the backend
// collaborator (api.Client) and by the Whisper client in this package.
type Transcriber interface {
	Transcribe(ctx context.Context, payload []byte) (string, error)
}

// Gate is the slice of the session controller the pipeline coordinates
// with: recording and exchange sending are mutually exclusive, and the
// recognized text enters the conversation through the same gate as typed
// input.
type Gate interface {
	BeginRecording() error
	BeginTranscribing() error
	EndRecording()
	SendTranscribed(ctx context.Context, text string) error
}

// Pipeline drives idle → recording → transcribing → idle.
type Pipeline struct {
	capture     Capture
	transcriber Transcriber
	gate        Gate
	notifier    chat.Notifier

	mu          sync.Mutex
	state       State
	chunks      [][]byte
	collectDone chan struct{}
}

func NewPipeline(capture Capture, transcriber Transcriber, gate Gate, notifier chat.Notifier) *Pipeline {
	if notifier == nil {
		notifier = chat.LogNotifier{}
	}
	return &Pipeline{
		capture:     capture,
		transcriber: transcriber,
		gate:        gate,
		notifier:    notifier,
		state:       StateIdle,
	}
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// StartRecording acquires the capture handle and begins buffering chunks.
// Allowed only from idle, and only when the gate grants the recording
// reservation (no exchange in flight, time remaining).
func (p *Pipeline) StartRecording(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return ErrAlreadyRecording
	}
	p.mu.Unlock()

	if err := p.gate.BeginRecording(); err != nil {
		return err
	}
	ch, err := p.capture.Start(ctx)
	if err != nil {
		p.gate.EndRecording()
		p.notifier.Notify(chat.NoticeError, "recording could not be started")
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.state = StateRecording
	p.chunks = nil
	p.collectDone = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		for chunk := range ch {
			p.mu.Lock()
			p.chunks = append(p.chunks, chunk)
			p.mu.Unlock()
		}
	}()
	return nil
}

// StopAndSend finalizes the buffered chunks, submits them for
// transcription and feeds a non-empty result into the exchange gate. An
// empty transcription returns the pipeline to idle with a warning and
// sends nothing.
func (p *Pipeline) StopAndSend(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateRecording {
		p.mu.Unlock()
		return ErrNotRecording
	}
	done := p.collectDone
	p.mu.Unlock()

	stopErr := p.capture.Stop()
	<-done

	p.mu.Lock()
	payload := bytes.Join(p.chunks, nil)
	p.chunks = nil
	p.collectDone = nil
	p.mu.Unlock()

	if stopErr != nil {
		p.reset()
		p.notifier.Notify(chat.NoticeError, "recording failed")
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, stopErr)
	}

	if err := p.gate.BeginTranscribing(); err != nil {
		p.reset()
		return err
	}
	p.mu.Lock()
	p.state = StateTranscribing
	p.mu.Unlock()

	text, err := p.transcriber.Transcribe(ctx, payload)
	if err != nil {
		p.reset()
		p.notifier.Notify(chat.NoticeError, "transcription failed")
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		p.reset()
		p.notifier.Notify(chat.NoticeWarning, "no speech recognized")
		return nil
	}

	err = p.gate.SendTranscribed(ctx, text)
	p.mu.Lock()
	p.state = StateIdle
	p.mu.Unlock()
	if err != nil {
		// The gate reservation is consumed either way.
		p.gate.EndRecording()
	}
	return err
}

// Cancel aborts any in-progress recording without transcribing. Used on
// controller teardown.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	recording := p.state == StateRecording
	done := p.collectDone
	p.mu.Unlock()
	if recording {
		_ = p.capture.Stop()
		if done != nil {
			<-done
		}
	}
	p.mu.Lock()
	p.state = StateIdle
	p.chunks = nil
	p.collectDone = nil
	p.mu.Unlock()
	p.gate.EndRecording()
}

// reset returns the pipeline to idle and releases the gate reservation.
func (p *Pipeline) reset() {
	p.mu.Lock()
	p.state = StateIdle
	p.chunks = nil
	p.collectDone = nil
	p.mu.Unlock()
	p.gate.EndRecording()
}
