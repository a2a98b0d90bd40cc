package models

import (
	"strings"
)

// Summary renders the last n messages as a plain-text digest, truncating each
// message to width runes.
func Summary(messages []Message, n, width int) string {
	if len(messages) == 0 || n <= 0 {
		return ""
	}
	if n < len(messages) {
		messages = messages[len(messages)-n:]
	}

	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.Role {
		case RoleUser:
			b.WriteString("You: ")
		default:
			b.WriteString("Assistant: ")
		}
		b.WriteString(truncate(msg.Content, width))
	}
	return b.String()
}

// LastAssistant returns the final message when it is an assistant reply.
func LastAssistant(messages []Message) (Message, bool) {
	if len(messages) == 0 {
		return Message{}, false
	}
	last := messages[len(messages)-1]
	if last.Role != RoleAssistant {
		return Message{}, false
	}
	return last, true
}

func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width]) + "..."
}
