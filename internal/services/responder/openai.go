package responder

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/logger"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a helpful assistant. Answer concisely."

// OpenAI answers with the chat completions API, keeping the whole session
// history in the prompt.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(key, model string) *OpenAI {
	return newOpenAIWithConfig(openai.DefaultConfig(key), model)
}

func newOpenAIWithConfig(cfg openai.ClientConfig, model string) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (o *OpenAI) request(history []models.Message, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	return openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   stream,
	}
}

func (o *OpenAI) Reply(ctx context.Context, history []models.Message) (string, error) {
	log.Debug().Str("component", logger.CHAT).Int("messages", len(history)).Msg("Requesting chat completion")

	resp, err := o.client.CreateChatCompletion(ctx, o.request(history, false))
	if err != nil {
		log.Error().Str("component", logger.CHAT).Err(err).Msg("Failed to get chat completion")
		return "", fmt.Errorf("failed to get chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) Stream(ctx context.Context, history []models.Message) (<-chan Token, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, o.request(history, true))
	if err != nil {
		log.Error().Str("component", logger.CHAT).Err(err).Msg("Failed to start chat completion stream")
		return nil, fmt.Errorf("failed to start chat completion stream: %w", err)
	}

	tokens := make(chan Token)
	go func() {
		defer close(tokens)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case tokens <- Token{Err: fmt.Errorf("chat completion stream: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case tokens <- Token{Content: choice.Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return tokens, nil
}
