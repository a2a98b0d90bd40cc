package chat

import "github.com/deepgram/parley/internal/domain/chat/models"

// Listener receives the events a user interface renders. Calls are made from
// the goroutine that drives the send, or from the stream transport for
// connection state changes.
type Listener interface {
	OnUserMessageCommitted(msg models.Message)
	OnAssistantDelta(fragment string)
	OnAssistantMessageCommitted(msg models.Message)
	OnError(reason string)
	OnConnectionStateChanged(state models.ConnectionState)
}

type NopListener struct{}

func (NopListener) OnUserMessageCommitted(models.Message)            {}
func (NopListener) OnAssistantDelta(string)                          {}
func (NopListener) OnAssistantMessageCommitted(models.Message)       {}
func (NopListener) OnError(string)                                   {}
func (NopListener) OnConnectionStateChanged(models.ConnectionState) {}

// ListenerFuncs adapts optional functions to a Listener.
type ListenerFuncs struct {
	UserMessageCommitted      func(models.Message)
	AssistantDelta            func(string)
	AssistantMessageCommitted func(models.Message)
	Error                     func(string)
	ConnectionStateChanged    func(models.ConnectionState)
}

func (f ListenerFuncs) OnUserMessageCommitted(msg models.Message) {
	if f.UserMessageCommitted != nil {
		f.UserMessageCommitted(msg)
	}
}

func (f ListenerFuncs) OnAssistantDelta(fragment string) {
	if f.AssistantDelta != nil {
		f.AssistantDelta(fragment)
	}
}

func (f ListenerFuncs) OnAssistantMessageCommitted(msg models.Message) {
	if f.AssistantMessageCommitted != nil {
		f.AssistantMessageCommitted(msg)
	}
}

func (f ListenerFuncs) OnError(reason string) {
	if f.Error != nil {
		f.Error(reason)
	}
}

func (f ListenerFuncs) OnConnectionStateChanged(state models.ConnectionState) {
	if f.ConnectionStateChanged != nil {
		f.ConnectionStateChanged(state)
	}
}
