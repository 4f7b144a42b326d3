package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"chemagent/internal/httpclient"
)

const (
	defaultAnthropicBaseURL   = "https://api.anthropic.com/v1"
	defaultAnthropicVersion   = "2023-06-01"
	defaultAnthropicMaxTokens = 2048
	anthropicVersionHeaderKey = "anthropic-version"
	anthropicRequestHeaderKey = "x-api-key"
	anthropicMessagesPath     = "/messages"
	anthropicStopSequence     = "stop_sequence"
)

type anthropicClient struct {
	baseClient
}

type anthropicRequest struct {
	Model         string    `json:"model"`
	MaxTokens     int       `json:"max_tokens"`
	System        string    `json:"system,omitempty"`
	Messages      []Message `json:"messages"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      Usage  `json:"usage"`
}

// NewAnthropicClient constructs a client for the Anthropic messages API.
func NewAnthropicClient(model string, config Config) (Client, error) {
	if model == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}
	return &anthropicClient{baseClient: newBaseClient(model, config, baseClientOpts{
		defaultBaseURL:   defaultAnthropicBaseURL,
		defaultMaxTokens: defaultAnthropicMaxTokens,
		logComponent:     "llm-anthropic",
	})}, nil
}

// Complete sends the leading system turn as the system prompt. The API
// returns a single completion, so NumReturn above one is ignored.
func (c *anthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages, prefix, err := withPrefill(req.Messages, req.Prefix)
	if err != nil {
		return nil, err
	}
	if req.NumReturn > 1 {
		c.logger.Warn("Anthropic API does not support num_return > 1. Using num_return = 1.")
	}

	var system string
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		system = messages[0].Content
		messages = messages[1:]
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	payload := anthropicRequest{
		Model:         c.model,
		MaxTokens:     maxTokens,
		System:        system,
		Messages:      messages,
		StopSequences: req.StopSequences,
	}

	c.logger.Debug("POST %s%s model=%s messages=%d", c.baseURL, anthropicMessagesPath, c.model, len(messages))

	headers := c.requestHeaders(map[string]string{
		anthropicRequestHeaderKey: c.apiKey,
		anthropicVersionHeaderKey: defaultAnthropicVersion,
	})
	var resp anthropicResponse
	if err := httpclient.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+anthropicMessagesPath, headers, payload, &resp); err != nil {
		c.logger.Debug("Anthropic request failed: %v", err)
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if resp.StopReason == anthropicStopSequence {
		c.logger.Info("Stop sequence detected.")
	}
	return &CompletionResponse{
		Choices:    []string{finishChoice(prefix, text.String())},
		StopReason: resp.StopReason,
		Usage:      resp.Usage,
	}, nil
}
