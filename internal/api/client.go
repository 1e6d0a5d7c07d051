package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the conversational backend. All methods are safe for
// concurrent use; serialization of exchanges is the caller's concern.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) CreateSession(ctx context.Context, botID, username string) (string, error) {
	var out CreateSessionResponse
	err := c.postJSON(ctx, "/create-session", CreateSessionRequest{BotID: botID, Username: username}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &Error{Op: "create-session", Err: fmt.Errorf("empty session id in response")}
	}
	return out.ID, nil
}

// Respond performs one exchange round-trip. A session_ended signal in the
// response is mapped to ErrSessionExpired regardless of HTTP status.
func (c *Client) Respond(ctx context.Context, req RespondRequest) (RespondResponse, error) {
	var out RespondResponse
	if err := c.postJSON(ctx, "/respond", req, &out); err != nil {
		return RespondResponse{}, err
	}
	if out.SessionEnded {
		return out, ErrSessionExpired
	}
	return out, nil
}

func (c *Client) CheckAccess(ctx context.Context) (AccessStatus, error) {
	var out AccessStatus
	if err := c.getJSON(ctx, "/check-access", nil, &out); err != nil {
		return AccessStatus{}, err
	}
	return out, nil
}

func (c *Client) StartSession(ctx context.Context) (StartSessionResult, error) {
	var out StartSessionResult
	if err := c.postJSON(ctx, "/start-session", struct{}{}, &out); err != nil {
		return StartSessionResult{}, err
	}
	return out, nil
}

func (c *Client) PurchaseSession(ctx context.Context) (PurchaseResult, error) {
	var out PurchaseResult
	if err := c.postJSON(ctx, "/purchase-session", struct{}{}, &out); err != nil {
		return PurchaseResult{}, err
	}
	return out, nil
}

func (c *Client) ListSessions(ctx context.Context, userID string, page, size int) ([]SessionInfo, error) {
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	var out []SessionInfo
	if err := c.getJSON(ctx, "/api/chat/sessions", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, sessionID string) ([]HistoryMessage, error) {
	var out HistoryResponse
	if err := c.getJSON(ctx, "/api/chat/sessions/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Transcribe submits a finished audio payload and returns the recognized
// text, which may be empty when nothing was recognized.
func (c *Client) Transcribe(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Op: "transcribe", Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	var out TranscriptionResponse
	if err := c.do(req, "transcribe", &out); err != nil {
		return "", err
	}
	return out.Transcription, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	op := strings.TrimLeft(path, "/")
	raw, err := json.Marshal(body)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, out)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	op := strings.TrimLeft(path, "/")
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer func(b io.ReadCloser) {
		_ = b.Close()
	}(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Op: op, StatusCode: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
