package audio

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// WhisperTranscriber recognizes speech through the OpenAI audio API,
// bypassing the backend's transcription endpoint.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

func NewWhisper(apiKey, baseURL, model string) *WhisperTranscriber {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, payload []byte) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "recording.wav",
		Reader:   bytes.NewReader(payload),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create transcription: %w", err)
	}
	return resp.Text, nil
}
