package stream

import (
	"sync"

	"github.com/deepgram/parley/internal/domain/chat/models"
)

const subscriptionBuffer = 64

// Subscription is the single consumer of inbound stream events. It ends when
// the connection closes, fails, or a newer subscription replaces it; Reason and
// Err describe why once Done is closed.
type Subscription struct {
	events chan models.StreamEvent
	done   chan struct{}

	once   sync.Once
	reason string
	err    error
}

func newSubscription() *Subscription {
	return &Subscription{
		events: make(chan models.StreamEvent, subscriptionBuffer),
		done:   make(chan struct{}),
	}
}

// Events yields decoded events in arrival order.
func (s *Subscription) Events() <-chan models.StreamEvent { return s.events }

// Done is closed when no further events will be delivered. Events already
// buffered remain readable.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Reason() string {
	<-s.done
	return s.reason
}

// Err returns the connection failure that ended the subscription, if any.
func (s *Subscription) Err() error {
	<-s.done
	return s.err
}

func (s *Subscription) deliver(event models.StreamEvent) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- event:
		return true
	case <-s.done:
		return false
	}
}

func (s *Subscription) end(reason string, err error) {
	s.once.Do(func() {
		s.reason = reason
		s.err = err
		close(s.done)
	})
}
