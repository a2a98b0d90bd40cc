package models

import (
	"errors"
	"time"
)

// Role is the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one committed transcript entry. It is never mutated after commit.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// NewUserMessage stamps an outbound message with the client clock.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, CreatedAt: time.Now().UTC()}
}

// NewAssistantMessage stamps a reply with the client clock.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, CreatedAt: time.Now().UTC()}
}

// Validate checks if the message is valid
func (m Message) Validate() error {
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return errors.New("invalid role: must be 'user' or 'assistant'")
	}
	if m.Content == "" {
		return errors.New("content cannot be empty")
	}
	return nil
}

// Exchange is the result of one request/response round trip.
type Exchange struct {
	SessionID string
	User      Message
	Assistant Message
}
