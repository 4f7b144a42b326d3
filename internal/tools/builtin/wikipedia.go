package builtin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/httpclient"
	"chemagent/internal/logging"
	"chemagent/internal/tools"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultWikipediaURL is the MediaWiki action API endpoint.
	DefaultWikipediaURL = "https://en.wikipedia.org/w/api.php"

	wikipediaDescription  = "Search Wikipedia. Input a search query, returns summaries of related content."
	wikipediaNoResult     = "No good Wikipedia Search Result was found"
	wikipediaTopK         = 3
	wikipediaMaxChars     = 4000
	wikipediaQueryMaxRune = 300
)

// Wikipedia searches Wikipedia and returns the lead section of the top pages.
type Wikipedia struct {
	apiURL string
	client *http.Client
	logger logging.Logger
}

// NewWikipedia returns the search tool for apiURL (DefaultWikipediaURL when empty).
func NewWikipedia(apiURL string, client *http.Client, logger logging.Logger) *Wikipedia {
	logger = logging.OrNop(logger)
	if apiURL == "" {
		apiURL = DefaultWikipediaURL
	}
	if client == nil {
		client = httpclient.New(30*time.Second, logger)
	}
	return &Wikipedia{apiURL: apiURL, client: client, logger: logger}
}

func (w *Wikipedia) Name() string        { return tools.WikipediaSearch }
func (w *Wikipedia) Description() string { return wikipediaDescription }
func (w *Wikipedia) Cacheable() bool     { return true }

type wikiSearchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

type wikiExtractResponse struct {
	Query struct {
		Pages map[string]struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

// Invoke returns "Page: <title>\nSummary: <lead>" blocks for the top results.
func (w *Wikipedia) Invoke(ctx context.Context, input, _ string) (string, error) {
	query := []rune(strings.TrimSpace(input))
	if len(query) > wikipediaQueryMaxRune {
		query = query[:wikipediaQueryMaxRune]
	}

	var search wikiSearchResponse
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {string(query)},
		"srlimit":  {fmt.Sprint(wikipediaTopK)},
		"format":   {"json"},
	}
	if err := w.get(ctx, params, &search); err != nil {
		return "", err
	}

	var summaries []string
	for _, hit := range search.Query.Search {
		summary, err := w.summary(ctx, hit.Title)
		if err != nil {
			if !chemerrors.IsRecoverableToolError(err) {
				return "", err
			}
			w.logger.Debug("Skipping Wikipedia page %q: %v", hit.Title, err)
			continue
		}
		if summary != "" {
			summaries = append(summaries, fmt.Sprintf("Page: %s\nSummary: %s", hit.Title, summary))
		}
	}
	if len(summaries) == 0 {
		return wikipediaNoResult, nil
	}
	out := strings.Join(summaries, "\n\n")
	if runes := []rune(out); len(runes) > wikipediaMaxChars {
		out = string(runes[:wikipediaMaxChars])
	}
	return out, nil
}

func (w *Wikipedia) summary(ctx context.Context, title string) (string, error) {
	var resp wikiExtractResponse
	params := url.Values{
		"action":    {"query"},
		"prop":      {"extracts"},
		"exintro":   {"1"},
		"redirects": {"1"},
		"titles":    {title},
		"format":    {"json"},
	}
	if err := w.get(ctx, params, &resp); err != nil {
		return "", err
	}
	for _, page := range resp.Query.Pages {
		return extractLeadText(page.Extract)
	}
	return "", nil
}

func (w *Wikipedia) get(ctx context.Context, params url.Values, out any) error {
	endpoint := w.apiURL + "?" + params.Encode()
	if err := httpclient.DoJSON(ctx, w.client, http.MethodGet, endpoint, nil, nil, out); err != nil {
		return &chemerrors.ToolError{
			Tool:        tools.WikipediaSearch,
			Message:     fmt.Sprintf("Wikipedia request failed: %v", err),
			Recoverable: true,
			Err:         err,
		}
	}
	return nil
}

// extractLeadText flattens the HTML intro returned by the extracts API into
// paragraphs of plain text.
func extractLeadText(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("style, script, sup.reference, .mw-empty-elt").Remove()

	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return strings.Join(strings.Fields(doc.Text()), " "), nil
	}
	return strings.Join(paragraphs, "\n"), nil
}
