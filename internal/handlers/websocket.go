package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/deepgram/parley/internal/connections"
	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/logger"
	"github.com/deepgram/parley/internal/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // development backend, any origin
	},
}

// HandleWebSocket streams assistant replies as token frames closed by a done
// frame. A failed reply carries one error frame just before its done. Requests
// on one connection are answered in order.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Str("component", logger.HANDLER).Err(err).Msg("WebSocket upgrade failed")
		return
	}

	peer := h.connections.Add(conn, middleware.ClientIP(r))
	defer func() {
		h.connections.Remove(peer)
		conn.Close()
	}()

	log.Info().Str("component", logger.HANDLER).Str("remote", peer.RemoteAddr()).Msg("WebSocket connected")

	timeouts := h.connections.Timeouts()
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requests := make(chan []byte, 16)
	g, ctx := errgroup.WithContext(ctx)

	// read pump
	g.Go(func() error {
		defer cancel()
		defer close(requests)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					return err
				}
				return nil
			}
			conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))

			select {
			case requests <- data:
			case <-ctx.Done():
				return nil
			}
		}
	})

	// reply worker
	g.Go(func() error {
		for data := range requests {
			if err := h.reply(ctx, peer, data); err != nil {
				conn.Close()
				return err
			}
		}
		return nil
	})

	// ping pump
	g.Go(func() error {
		ticker := time.NewTicker(timeouts.PingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := peer.Ping(); err != nil {
					conn.Close()
					return err
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Warn().Str("component", logger.HANDLER).Str("remote", peer.RemoteAddr()).Err(err).Msg("WebSocket closed with error")
		return
	}
	log.Info().Str("component", logger.HANDLER).Str("remote", peer.RemoteAddr()).Msg("WebSocket disconnected")
}

// reply answers one request frame. Only write failures are returned; anything
// else is reported to the client as an error frame.
func (h *Handler) reply(ctx context.Context, peer *connections.Peer, data []byte) error {
	var req models.OutboundFrame
	if err := json.Unmarshal(data, &req); err != nil {
		return fail(peer, "Invalid request")
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		return fail(peer, "Message cannot be empty")
	}

	if !h.allowMessage(peer.RemoteAddr()) {
		return fail(peer, "Rate limit exceeded")
	}

	token, err := h.history.Open(req.SessionID)
	if err != nil {
		log.Error().Str("component", logger.HANDLER).Err(err).Msg("Failed to open session")
		return fail(peer, "Failed to create session")
	}

	msgs, err := h.history.Append(token, models.NewUserMessage(text))
	if err != nil {
		return fail(peer, "Failed to add message")
	}

	ctx, cancel := context.WithTimeout(ctx, streamTimeout)
	defer cancel()

	tokens, err := h.responder.Stream(ctx, msgs)
	if err != nil {
		log.Error().Str("component", logger.HANDLER).Err(err).Msg("Failed to start response stream")
		return fail(peer, "Failed to stream response")
	}

	var sb strings.Builder
	for tok := range tokens {
		if tok.Err != nil {
			log.Error().Str("component", logger.HANDLER).Err(tok.Err).Msg("Response stream failed")
			return fail(peer, "Failed to stream response")
		}
		sb.WriteString(tok.Content)
		if err := writeFrame(peer, models.EventToken, tok.Content); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(peer, "Response timed out")
		}
		return nil
	}

	if sb.Len() > 0 {
		if _, err := h.history.Append(token, models.NewAssistantMessage(sb.String())); err != nil {
			log.Warn().Str("component", logger.HANDLER).Err(err).Msg("Failed to record streamed reply")
		}
	}
	return writeFrame(peer, models.EventDone, "")
}

// fail ends a reply with an error frame and the done frame that follows it.
func fail(peer *connections.Peer, reason string) error {
	if err := writeFrame(peer, models.EventError, reason); err != nil {
		return err
	}
	return writeFrame(peer, models.EventDone, "")
}

func writeFrame(peer *connections.Peer, typ models.EventType, content string) error {
	return peer.WriteJSON(models.InboundFrame{Type: typ, Content: content})
}
