// Package audio implements the record→transcribe→send pipeline. The real
// capture device and the speech model are external collaborators; the
// pipeline owns only the state machine between them.
package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Capture abstracts an audio capture handle. Start begins buffered capture
// and returns the chunk stream; Stop releases the handle and closes the
// stream after the final chunk.
type Capture interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop() error
}

const fileChunkSize = 4096

// FileCapture is a capture source backed by a pre-recorded audio file.
// It stands in for a microphone where no device is available.
type FileCapture struct {
	path string

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewFileCapture(path string) *FileCapture {
	return &FileCapture{path: path}
}

func (f *FileCapture) Start(ctx context.Context) (<-chan []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stop != nil {
		return nil, fmt.Errorf("capture already started")
	}
	src, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open capture source: %w", err)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	f.stop = stop
	f.done = done
	ch := make(chan []byte, 16)
	go func() {
		defer close(done)
		defer close(ch)
		defer func(src *os.File) {
			_ = src.Close()
		}(src)
		for {
			buf := make([]byte, fileChunkSize)
			n, err := src.Read(buf)
			if n > 0 {
				select {
				case ch <- buf[:n]:
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF {
				// Keep the handle "recording" until Stop, like a device
				// that simply has no further samples.
				select {
				case <-stop:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch, nil
}

func (f *FileCapture) Stop() error {
	f.mu.Lock()
	stop, done := f.stop, f.done
	f.stop, f.done = nil, nil
	f.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}
