// Package openai serves completion requests through any OpenAI-compatible
// chat completions endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Lllllllleong/docinsight/internal/llm"
	goopenai "github.com/sashabaranov/go-openai"
)

// Completer satisfies llm.Backend.
type Completer struct {
	client *goopenai.Client
}

// New builds a Completer. An empty baseURL uses the public OpenAI API.
func New(apiKey, baseURL string) (*Completer, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key must be provided")
	}
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Completer{client: goopenai.NewClientWithConfig(cfg)}, nil
}

func (c *Completer) Complete(ctx context.Context, model string, req llm.Request) (*llm.Response, error) {
	creq := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    toMessages(req),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		creq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %v", llm.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat completion with %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion with %s: no choices returned", model)
	}

	out := &llm.Response{
		Text:             resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if out.Model == "" {
		out.Model = model
	}
	return out, nil
}

func toMessages(req llm.Request) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := goopenai.ChatMessageRoleUser
		if m.Role == llm.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return msgs
}

func isRateLimited(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
