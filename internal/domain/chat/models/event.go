package models

import (
	"encoding/json"
)

// EventType tags a StreamEvent.
type EventType string

const (
	EventToken EventType = "token"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

const (
	// ReasonInvalidFormat is reported for frames that cannot be decoded.
	ReasonInvalidFormat = "invalid message format"
	// ReasonConnectionClosed is reported when a stream ends without a terminal frame.
	ReasonConnectionClosed = "connection closed"
)

// StreamEvent is one decoded unit from the duplex channel.
type StreamEvent struct {
	Type     EventType
	Fragment string
	Reason   string
}

func Token(fragment string) StreamEvent { return StreamEvent{Type: EventToken, Fragment: fragment} }

func Done() StreamEvent { return StreamEvent{Type: EventDone} }

func Error(reason string) StreamEvent { return StreamEvent{Type: EventError, Reason: reason} }

// IsTerminal reports whether the event ends an assistant reply.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// OutboundFrame is the client to server wire frame.
type OutboundFrame struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// InboundFrame is the server to client wire frame.
type InboundFrame struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// EncodeFrame serializes an outbound payload.
func EncodeFrame(sessionID, text string) ([]byte, error) {
	return json.Marshal(OutboundFrame{SessionID: sessionID, Message: text})
}

// DecodeFrame maps a raw inbound frame to a StreamEvent. Anything that is not a
// well-formed token, done or error frame decodes to ERROR(ReasonInvalidFormat).
func DecodeFrame(data []byte) StreamEvent {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Error(ReasonInvalidFormat)
	}
	switch frame.Type {
	case EventToken:
		return Token(frame.Content)
	case EventDone:
		return Done()
	case EventError:
		return Error(frame.Content)
	default:
		return Error(ReasonInvalidFormat)
	}
}
