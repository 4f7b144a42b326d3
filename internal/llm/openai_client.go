package llm

import (
	"context"
	"fmt"
	"net/http"

	"chemagent/internal/httpclient"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI API compatible client
type openaiClient struct {
	baseClient
}

type openaiRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	N         int       `json:"n,omitempty"`
	Stop      []string  `json:"stop,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient constructs a client for the OpenAI chat completions API.
// The token limit is only sent when configured explicitly.
func NewOpenAIClient(model string, config Config) (Client, error) {
	if model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	return &openaiClient{baseClient: newBaseClient(model, config, baseClientOpts{
		defaultBaseURL: defaultOpenAIBaseURL,
		logComponent:   "llm-openai",
	})}, nil
}

func (c *openaiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages, prefix, err := withPrefill(req.Messages, req.Prefix)
	if err != nil {
		return nil, err
	}
	n := req.NumReturn
	if n <= 0 {
		n = 1
	}
	payload := openaiRequest{
		Model:     c.model,
		Messages:  messages,
		N:         n,
		Stop:      req.StopSequences,
		MaxTokens: req.MaxTokens,
	}

	c.logger.Debug("POST %s/chat/completions model=%s messages=%d n=%d", c.baseURL, c.model, len(messages), n)

	var resp openaiResponse
	headers := c.requestHeaders(map[string]string{"Authorization": "Bearer " + c.apiKey})
	if err := httpclient.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/chat/completions", headers, payload, &resp); err != nil {
		c.logger.Debug("OpenAI request failed: %v", err)
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai completion: empty choices")
	}

	out := &CompletionResponse{
		Choices:    make([]string, 0, len(resp.Choices)),
		StopReason: resp.Choices[0].FinishReason,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, choice := range resp.Choices {
		out.Choices = append(out.Choices, finishChoice(prefix, choice.Message.Content))
	}
	return out, nil
}
