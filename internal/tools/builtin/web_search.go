package builtin

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/httpclient"
	"chemagent/internal/logging"
	"chemagent/internal/tools"
)

const (
	// DefaultTavilyURL is the Tavily search endpoint.
	DefaultTavilyURL = "https://api.tavily.com/search"

	webSearchDescription = "Search the web for any questions and knowledge (including both general ones and domain-specific ones) and obtain concise summaries of the most relevant content. Input a specific question, returns a summary of the relevant content that answers the question."
)

// WebSearch asks Tavily for an answer summary of the query.
type WebSearch struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   logging.Logger
}

// NewWebSearch returns the Tavily-backed tool. endpoint defaults to
// DefaultTavilyURL.
func NewWebSearch(apiKey, endpoint string, client *http.Client, logger logging.Logger) *WebSearch {
	logger = logging.OrNop(logger)
	if endpoint == "" {
		endpoint = DefaultTavilyURL
	}
	if client == nil {
		client = httpclient.Guarded(60*time.Second, "tavily", logger)
	}
	return &WebSearch{endpoint: endpoint, apiKey: apiKey, client: client, logger: logger}
}

func (t *WebSearch) Name() string        { return tools.WebSearch }
func (t *WebSearch) Description() string { return webSearchDescription }

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *WebSearch) Invoke(ctx context.Context, input, _ string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", chemerrors.Recoverable(tools.WebSearch, "query is empty")
	}
	body := tavilyRequest{
		APIKey:        t.apiKey,
		Query:         query,
		SearchDepth:   "advanced",
		IncludeAnswer: true,
	}
	headers := map[string]string{"Authorization": "Bearer " + t.apiKey}

	var resp tavilyResponse
	if err := httpclient.DoJSON(ctx, t.client, http.MethodPost, t.endpoint, headers, body, &resp); err != nil {
		return "", &chemerrors.ToolError{
			Tool:        tools.WebSearch,
			Message:     fmt.Sprintf("web search failed: %v", err),
			Recoverable: true,
			Err:         err,
		}
	}
	if answer := strings.TrimSpace(resp.Answer); answer != "" {
		return answer, nil
	}

	t.logger.Debug("Tavily returned no answer for %q; falling back to %d results", query, len(resp.Results))
	if len(resp.Results) == 0 {
		return "", chemerrors.Recoverable(tools.WebSearch, "No relevant content was found for the query.")
	}
	var out strings.Builder
	for i, result := range resp.Results {
		fmt.Fprintf(&out, "%d. %s\n   %s\n", i+1, result.Title, result.Content)
	}
	return strings.TrimRight(out.String(), "\n"), nil
}
