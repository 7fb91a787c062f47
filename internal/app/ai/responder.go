/*
Package ai provides the AI responder collaborator consumed by the realtime core.

The core relays opaque ai_request envelopes to a Responder under a bounded
timeout and relays the answer back (or an error envelope) to the requesting
connection only. Response generation itself is a black box.
*/
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// RequestTimeout bounds a single responder call. The hub substitutes an error
// envelope for the ai_response once it elapses.
const RequestTimeout = 30 * time.Second

// Request carries one relayed question.
type Request struct {
	Question   string
	Username   string
	UseContext bool
}

// Responder answers relayed questions.
type Responder interface {
	Answer(ctx context.Context, req Request) (string, error)
}

// OpenAIResponder implements Responder against an OpenAI-compatible API,
// including local LLM runtimes that speak the same protocol via BaseURL.
type OpenAIResponder struct {
	client *openai.Client
	model  string
}

// NewOpenAIResponder builds a responder for the given credentials. baseURL is
// optional; an empty string uses the default API endpoint.
func NewOpenAIResponder(apiKey, baseURL, model string) (*OpenAIResponder, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	if model == "" {
		return nil, errors.New("model is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIResponder{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Answer relays one question and returns the completion text.
func (r *OpenAIResponder) Answer(ctx context.Context, req Request) (string, error) {
	system := "You are a helpful assistant inside a team chat. Answer concisely."
	if req.UseContext {
		system += " The user expects answers grounded in their workspace documents."
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: req.Question},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
