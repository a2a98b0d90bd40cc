package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/logger"
	"github.com/rs/zerolog/log"
)

const (
	chatPath = "/api/chat"
	// ReasonRequestFailed is used when the server gives no reason of its own.
	ReasonRequestFailed = "request failed"
	maxErrorBody        = 64 << 10
)

// Sessions is the part of the session manager the transport needs.
type Sessions interface {
	GetOrCreate(ctx context.Context) string
	Adopt(ctx context.Context, sentID, serverID string) bool
}

// RequestFailedError is returned for non-2xx replies and transport failures.
// No part of the exchange is committed when it is returned.
type RequestFailedError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *RequestFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chat request failed with status %d: %s", e.StatusCode, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("chat request failed: %s: %v", e.Reason, e.Err)
	}
	return "chat request failed: " + e.Reason
}

func (e *RequestFailedError) Unwrap() error { return e.Err }

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Client is the one-shot request/response transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sessions   Sessions
}

func NewClient(baseURL string, timeout time.Duration, sessions Sessions) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		sessions:   sessions,
	}
}

// Send posts text under the current session and returns the echoed user
// message together with the assistant reply. It does not retry.
func (c *Client) Send(ctx context.Context, text string) (*models.Exchange, error) {
	user := models.NewUserMessage(text)
	sessionID := c.sessions.GetOrCreate(ctx)

	body, err := json.Marshal(chatRequest{SessionID: sessionID, Message: text})
	if err != nil {
		return nil, &RequestFailedError{Reason: "encoding request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, &RequestFailedError{Reason: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.Debug().Str("component", logger.REST).Str("session_id", sessionID).Int("length", len(text)).Msg("Sending chat request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Str("component", logger.REST).Err(err).Msg("Chat request failed")
		return nil, &RequestFailedError{Reason: ReasonRequestFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := readReason(resp.Body)
		log.Warn().Str("component", logger.REST).Int("status", resp.StatusCode).Str("reason", reason).Msg("Chat request rejected")
		return nil, &RequestFailedError{StatusCode: resp.StatusCode, Reason: reason}
	}

	var reply chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, &RequestFailedError{Reason: "invalid response", Err: err}
	}
	if reply.Message == "" {
		return nil, &RequestFailedError{Reason: "empty response"}
	}

	if c.sessions.Adopt(ctx, sessionID, reply.SessionID) {
		sessionID = reply.SessionID
	}

	return &models.Exchange{
		SessionID: sessionID,
		User:      user,
		Assistant: models.NewAssistantMessage(reply.Message),
	}, nil
}

func readReason(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return ReasonRequestFailed
	}
	var payload errorResponse
	if err := json.Unmarshal(data, &payload); err != nil || payload.Message == "" {
		return ReasonRequestFailed
	}
	return payload.Message
}
