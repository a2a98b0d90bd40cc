package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deepgram/parley/internal/domain/chat/models"
)

// Echo answers by repeating the last user message, word by word when streaming.
type Echo struct {
	delay time.Duration
}

func NewEcho(delay time.Duration) *Echo {
	return &Echo{delay: delay}
}

func (e *Echo) Reply(_ context.Context, history []models.Message) (string, error) {
	last := lastUserMessage(history)
	if last == "" {
		return "", fmt.Errorf("no user message to answer")
	}
	return "You said: " + last, nil
}

func (e *Echo) Stream(ctx context.Context, history []models.Message) (<-chan Token, error) {
	reply, err := e.Reply(ctx, history)
	if err != nil {
		return nil, err
	}

	words := strings.SplitAfter(reply, " ")
	tokens := make(chan Token)

	go func() {
		defer close(tokens)
		for _, word := range words {
			if e.delay > 0 {
				select {
				case <-time.After(e.delay):
				case <-ctx.Done():
					select {
					case tokens <- Token{Err: ctx.Err()}:
					default:
					}
					return
				}
			}
			select {
			case tokens <- Token{Content: word}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return tokens, nil
}
