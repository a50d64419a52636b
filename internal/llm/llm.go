// Package llm defines the provider-neutral shape of a chat completion call.
// Backends live in internal/gcp (Vertex AI) and internal/openai.
package llm

import (
	"context"
	"errors"
)

// ErrRateLimited is returned (wrapped) by a Backend when the provider rejects
// a call because of a rate or quota limit.
var ErrRateLimited = errors.New("completion provider rate limited")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Request is sent unchanged to whichever model serves it.
type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	TopP        float32
	MaxTokens   int
	// JSON asks the provider to constrain output to a single JSON object.
	JSON bool
}

type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

func (r *Response) TokensUsed() int {
	return r.PromptTokens + r.CompletionTokens
}

// Backend performs one completion call against the named model.
type Backend interface {
	Complete(ctx context.Context, model string, req Request) (*Response, error)
}
