package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/logger"
	"github.com/deepgram/parley/internal/services/conversation"
	"github.com/deepgram/parley/internal/transport/rest"
	"github.com/deepgram/parley/internal/transport/stream"
	"github.com/rs/zerolog/log"
)

// Mode selects the active transport.
type Mode int

const (
	ModeStreaming Mode = iota
	ModeRequest
)

func (m Mode) String() string {
	if m == ModeRequest {
		return "request"
	}
	return "streaming"
}

// Sessions is the part of the session manager the coordinator drives.
type Sessions interface {
	GetOrCreate(ctx context.Context) string
	Clear(ctx context.Context)
}

// RequestTransport is the one-shot transport.
type RequestTransport interface {
	Send(ctx context.Context, text string) (*models.Exchange, error)
}

// StreamTransport is the duplex transport.
type StreamTransport interface {
	Send(sessionID, text string) error
	Subscribe() *stream.Subscription
	Unsubscribe(sub *stream.Subscription)
	OnStateChange(fn func(models.ConnectionState))
	State() models.ConnectionState
	Close()
}

// Result is the outcome of one asynchronous send.
type Result struct {
	Message models.Message
	Err     error
}

// Coordinator exposes one send, clear and mode contract over both transports.
// Sends are serialized: a send waits for the previous reply to finish.
type Coordinator struct {
	sessions   Sessions
	transcript *conversation.Store
	request    RequestTransport
	streaming  StreamTransport
	listener   Listener
	maxLength  int

	sendSem chan struct{}

	mu         sync.Mutex
	mode       Mode
	generation uint64
}

type CoordinatorConfig struct {
	Mode             Mode
	MaxMessageLength int
	Listener         Listener
}

func NewCoordinator(sessions Sessions, transcript *conversation.Store, request RequestTransport, streaming StreamTransport, cfg CoordinatorConfig) *Coordinator {
	listener := cfg.Listener
	if listener == nil {
		listener = NopListener{}
	}

	c := &Coordinator{
		sessions:   sessions,
		transcript: transcript,
		request:    request,
		streaming:  streaming,
		listener:   listener,
		maxLength:  cfg.MaxMessageLength,
		sendSem:    make(chan struct{}, 1),
		mode:       cfg.Mode,
	}
	streaming.OnStateChange(listener.OnConnectionStateChanged)
	return c
}

func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches the active transport. Leaving streaming closes the duplex
// connection; entering it does not connect until the next send.
func (c *Coordinator) SetMode(mode Mode) {
	c.mu.Lock()
	previous := c.mode
	c.mode = mode
	c.mu.Unlock()

	if previous == mode {
		return
	}
	log.Info().Str("component", logger.CHAT).Str("from", previous.String()).Str("to", mode.String()).Msg("Transport mode changed")

	if previous == ModeStreaming {
		c.streaming.Close()
	}
}

func (c *Coordinator) ConnectionState() models.ConnectionState {
	return c.streaming.State()
}

func (c *Coordinator) Transcript() []models.Message {
	return c.transcript.Messages()
}

// Send commits text as a user message, dispatches it on the active transport
// and returns the committed assistant reply. On failure the user message
// stays in the transcript and no assistant message is added.
func (c *Coordinator) Send(ctx context.Context, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if c.maxLength > 0 && utf8.RuneCountInString(text) > c.maxLength {
		return models.Message{}, fmt.Errorf("%w: limit is %d characters", ErrMessageTooLong, c.maxLength)
	}

	select {
	case c.sendSem <- struct{}{}:
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
	defer func() { <-c.sendSem }()

	user := models.NewUserMessage(text)

	c.mu.Lock()
	sessionID := c.sessions.GetOrCreate(ctx)
	mode := c.mode
	generation := c.generation
	err := c.transcript.Append(user)
	c.mu.Unlock()
	if err != nil {
		return models.Message{}, err
	}
	c.listener.OnUserMessageCommitted(user)

	log.Debug().
		Str("component", logger.CHAT).
		Str("mode", mode.String()).
		Str("session_id", sessionID).
		Msg("Dispatching message")

	var reply models.Message
	if mode == ModeStreaming {
		reply, err = c.sendStreaming(ctx, generation, sessionID, text)
	} else {
		reply, err = c.sendRequest(ctx, generation, text)
	}
	if err != nil {
		c.fail(err)
		return models.Message{}, err
	}
	return reply, nil
}

// SendAsync runs Send in the background and delivers its single result.
func (c *Coordinator) SendAsync(ctx context.Context, text string) <-chan Result {
	results := make(chan Result, 1)
	go func() {
		msg, err := c.Send(ctx, text)
		results <- Result{Message: msg, Err: err}
		close(results)
	}()
	return results
}

func (c *Coordinator) sendRequest(ctx context.Context, generation uint64, text string) (models.Message, error) {
	exchange, err := c.request.Send(ctx, text)
	if err != nil {
		return models.Message{}, err
	}
	if err := c.commitAssistant(generation, exchange.Assistant); err != nil {
		return models.Message{}, err
	}
	c.listener.OnAssistantMessageCommitted(exchange.Assistant)
	return exchange.Assistant, nil
}

func (c *Coordinator) sendStreaming(ctx context.Context, generation uint64, sessionID, text string) (models.Message, error) {
	sub := c.streaming.Subscribe()
	defer c.streaming.Unsubscribe(sub)

	if err := c.streaming.Send(sessionID, text); err != nil {
		return models.Message{}, err
	}

	assembler := NewAssembler(func(msg models.Message) error {
		return c.commitAssistant(generation, msg)
	}, c.listener)

	reply, err := assembler.Assemble(ctx, sub)
	if err != nil && ctx.Err() != nil {
		// the abandoned reply would otherwise reach the next subscriber
		c.streaming.Close()
	}
	return reply, err
}

func (c *Coordinator) commitAssistant(generation uint64, msg models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		log.Info().Str("component", logger.CHAT).Msg("Discarding reply for a cleared session")
		return ErrSessionCleared
	}
	return c.transcript.Append(msg)
}

// Clear empties the transcript and forgets the session. In streaming mode the
// connection is closed so no tokens for the old session are delivered, and a
// request already in flight has its reply discarded.
func (c *Coordinator) Clear(ctx context.Context) {
	if c.Mode() == ModeStreaming {
		c.streaming.Close()
	}

	c.mu.Lock()
	c.generation++
	c.transcript.Clear(ctx)
	c.sessions.Clear(ctx)
	c.mu.Unlock()

	log.Info().Str("component", logger.CHAT).Msg("Conversation cleared")
}

func (c *Coordinator) fail(err error) {
	reason := err.Error()

	var streamErr *StreamError
	var requestErr *rest.RequestFailedError
	switch {
	case errors.As(err, &streamErr):
		reason = streamErr.Reason
	case errors.As(err, &requestErr):
		reason = requestErr.Reason
	}

	log.Warn().Str("component", logger.CHAT).Err(err).Msg("Send failed")
	c.listener.OnError(reason)
}
