package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/logger"
	"github.com/deepgram/parley/pkg/httpext"
	"github.com/rs/zerolog/log"
)

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleChat answers one message with the complete assistant reply. The
// session_id in the response is the token the client should send next time.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFrameSize)).Decode(&req); err != nil {
		log.Warn().Str("component", logger.HANDLER).Err(err).Msg("Failed to decode chat request")
		httpext.JsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		httpext.JsonError(w, "Message cannot be empty", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()

	token, err := h.history.Open(req.SessionID)
	if err != nil {
		log.Error().Str("component", logger.HANDLER).Err(err).Msg("Failed to open session")
		httpext.JsonError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	msgs, err := h.history.Append(token, models.NewUserMessage(text))
	if err != nil {
		log.Error().Str("component", logger.HANDLER).Err(err).Msg("Failed to add user message")
		httpext.JsonError(w, "Failed to add message", http.StatusInternalServerError)
		return
	}

	reply, err := h.responder.Reply(ctx, msgs)
	if err != nil {
		log.Error().Str("component", logger.HANDLER).Err(err).Msg("Failed to generate response")
		httpext.JsonError(w, "Failed to generate response", http.StatusBadGateway)
		return
	}

	if _, err := h.history.Append(token, models.NewAssistantMessage(reply)); err != nil {
		log.Error().Str("component", logger.HANDLER).Err(err).Msg("Failed to add assistant message")
		httpext.JsonError(w, "Failed to add message", http.StatusInternalServerError)
		return
	}

	log.Debug().Str("component", logger.HANDLER).Int("history", len(msgs)+1).Msg("Chat reply sent")
	httpext.JsonResponse(w, http.StatusOK, ChatResponse{
		SessionID: token,
		Message:   reply,
		Timestamp: time.Now().UTC(),
	})
}
