package chat

import (
	"context"
	"strings"

	"github.com/deepgram/parley/internal/domain/chat/models"
)

// EventSource is one subscription to the stream transport.
type EventSource interface {
	Events() <-chan models.StreamEvent
	Done() <-chan struct{}
	Reason() string
	Err() error
}

// Assembler rebuilds one assistant reply from its stream events. Fragments are
// forwarded to the listener as they arrive; the reply is committed only on DONE.
type Assembler struct {
	commit   func(models.Message) error
	listener Listener
}

func NewAssembler(commit func(models.Message) error, listener Listener) *Assembler {
	if listener == nil {
		listener = NopListener{}
	}
	return &Assembler{commit: commit, listener: listener}
}

// Assemble consumes src until a terminal event. A source that ends without
// one fails with ERROR("connection closed") or the connection failure that
// ended it.
func (a *Assembler) Assemble(ctx context.Context, src EventSource) (models.Message, error) {
	var buf strings.Builder

	for {
		select {
		case event := <-src.Events():
			if msg, done, err := a.handle(&buf, event); done {
				return msg, err
			}
		case <-src.Done():
			// events buffered before the end still count
			for {
				select {
				case event := <-src.Events():
					if msg, done, err := a.handle(&buf, event); done {
						return msg, err
					}
				default:
					reason := src.Reason()
					if reason == "" {
						reason = models.ReasonConnectionClosed
					}
					return models.Message{}, &StreamError{Reason: reason, Err: src.Err()}
				}
			}
		case <-ctx.Done():
			return models.Message{}, ctx.Err()
		}
	}
}

func (a *Assembler) handle(buf *strings.Builder, event models.StreamEvent) (models.Message, bool, error) {
	switch event.Type {
	case models.EventToken:
		buf.WriteString(event.Fragment)
		if event.Fragment != "" {
			a.listener.OnAssistantDelta(event.Fragment)
		}
		return models.Message{}, false, nil
	case models.EventDone:
		if buf.Len() == 0 {
			return models.Message{}, true, &StreamError{Reason: "empty response"}
		}
		msg := models.NewAssistantMessage(buf.String())
		if err := a.commit(msg); err != nil {
			return models.Message{}, true, err
		}
		a.listener.OnAssistantMessageCommitted(msg)
		return msg, true, nil
	default:
		return models.Message{}, true, &StreamError{Reason: event.Reason}
	}
}
