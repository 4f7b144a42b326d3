package llm

import (
	"context"
	"time"
)

// Message roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest asks a backend for one or more completions of Messages.
//
// When Prefix is set the backend prefills the assistant turn with it and
// every returned choice starts with the prefix.
type CompletionRequest struct {
	Messages      []Message
	StopSequences []string
	Prefix        string
	NumReturn     int
	MaxTokens     int
}

// Usage reports token accounting returned by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CompletionResponse holds the right-trimmed completions in provider order.
type CompletionResponse struct {
	Choices    []string
	StopReason string
	Usage      Usage
}

// Text returns the first choice or an empty string.
func (r *CompletionResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0]
}

// Client is a chat-completion backend.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}

// Config carries provider connection settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
	Headers   map[string]string
}
