package chat

import "errors"

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
	// ErrSessionCleared is returned when a reply completes after Clear; the
	// reply is discarded.
	ErrSessionCleared = errors.New("session was cleared before the reply completed")
)

// StreamError is a streamed reply that ended without DONE. Nothing was committed.
type StreamError struct {
	Reason string
	Err    error
}

func (e *StreamError) Error() string {
	return "assistant reply failed: " + e.Reason
}

func (e *StreamError) Unwrap() error { return e.Err }
