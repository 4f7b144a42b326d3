package llm

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"chemagent/internal/httpclient"
	"chemagent/internal/logging"
)

var errPrefillNeedsUserTurn = errors.New("prefix requires the conversation to end with a user turn")

// baseClient holds fields and helpers shared by the HTTP-based clients.
type baseClient struct {
	model      string
	apiKey     string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	logger     logging.Logger
	headers    map[string]string
}

type baseClientOpts struct {
	defaultBaseURL   string
	defaultMaxTokens int
	logComponent     string
}

// Model returns the model name used by this client.
func (c *baseClient) Model() string {
	return c.model
}

func newBaseClient(model string, config Config, opts baseClientOpts) baseClient {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = opts.defaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = opts.defaultMaxTokens
	}
	logger := logging.NewComponentLogger(opts.logComponent)
	return baseClient{
		model:      model,
		apiKey:     config.APIKey,
		baseURL:    baseURL,
		maxTokens:  maxTokens,
		httpClient: httpclient.New(timeout, logger),
		logger:     logger,
		headers:    config.Headers,
	}
}

// requestHeaders merges the configured extra headers over the provider auth
// headers.
func (c *baseClient) requestHeaders(auth map[string]string) map[string]string {
	headers := make(map[string]string, len(auth)+len(c.headers))
	for k, v := range auth {
		headers[k] = v
	}
	for k, v := range c.headers {
		headers[k] = v
	}
	return headers
}

// withPrefill appends the rstripped prefix as an assistant turn. The last turn
// must come from the user.
func withPrefill(messages []Message, prefix string) ([]Message, string, error) {
	out := append([]Message(nil), messages...)
	if prefix == "" {
		return out, "", nil
	}
	if len(out) == 0 || out[len(out)-1].Role != RoleUser {
		return nil, "", errPrefillNeedsUserTurn
	}
	prefix = strings.TrimRight(prefix, " \t\r\n")
	out = append(out, Message{Role: RoleAssistant, Content: prefix})
	return out, prefix, nil
}

func finishChoice(prefix, text string) string {
	return prefix + strings.TrimRight(text, " \t\r\n")
}
