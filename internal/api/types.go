package api

import "time"

// MessageType mirrors the backend's message kind discriminator.
type MessageType string

const (
	MessageTypeUser   MessageType = "USER"
	MessageTypeAI     MessageType = "AI"
	MessageTypeSystem MessageType = "SYSTEM"
	// MessageTypeNaming marks title-generation prompts so the backend can
	// keep them out of the ordinary conversation context.
	MessageTypeNaming MessageType = "NAMING_PROMPT"
)

type CreateSessionRequest struct {
	BotID    string `json:"botId"`
	Username string `json:"username,omitempty"`
}

type CreateSessionResponse struct {
	ID string `json:"id"`
}

type RespondRequest struct {
	SessionID      string      `json:"sessionId"`
	Content        string      `json:"content"`
	IsFirstMessage bool        `json:"isFirstMessage"`
	MessageType    MessageType `json:"messageType,omitempty"`
}

type RespondResponse struct {
	Content      string `json:"content"`
	SessionEnded bool   `json:"session_ended,omitempty"`
}

type AccessStatus struct {
	Access           bool   `json:"access"`
	SessionActive    bool   `json:"session_active"`
	RemainingTime    int    `json:"remaining_time"`
	AvailableMinutes int    `json:"available_minutes"`
	Message          string `json:"message,omitempty"`
}

type StartSessionResult struct {
	RemainingTime int    `json:"remaining_time"`
	Error         string `json:"error,omitempty"`
	NeedsPurchase bool   `json:"needs_purchase,omitempty"`
}

type PurchaseResult struct {
	Message          string `json:"message"`
	Balance          int    `json:"balance"`
	AvailableMinutes int    `json:"available_minutes"`
}

type SessionInfo struct {
	ID        string    `json:"id"`
	StartDate time.Time `json:"startDate"`
}

type HistoryMessage struct {
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

type HistoryResponse struct {
	Messages []HistoryMessage `json:"messages"`
}

type TranscriptionResponse struct {
	Transcription string `json:"transcription"`
}
