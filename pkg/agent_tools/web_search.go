package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alantheprice/xmlagent/pkg/utils"
)

// DuckDuckGoURL is the Instant Answer API endpoint.
const DuckDuckGoURL = "https://api.duckduckgo.com/"

// DefaultSearchResults is how many results a search keeps.
const DefaultSearchResults = 5

// SearchResult represents a single search result.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// WebSearcher queries the DuckDuckGo Instant Answer API.
type WebSearcher struct {
	Endpoint   string
	MaxResults int
	Client     *http.Client
}

// NewWebSearcher returns a searcher for endpoint (DuckDuckGoURL when empty)
// keeping at most maxResults results.
func NewWebSearcher(endpoint string, maxResults int) *WebSearcher {
	if endpoint == "" {
		endpoint = DuckDuckGoURL
	}
	if maxResults <= 0 {
		maxResults = DefaultSearchResults
	}
	return &WebSearcher{
		Endpoint:   endpoint,
		MaxResults: maxResults,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type ddgTopic struct {
	FirstURL string `json:"FirstURL"`
	Text     string `json:"Text"`
}

type ddgResponse struct {
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

// Search returns the related topics DuckDuckGo knows for query. A blank
// query returns no results without a request.
func (s *WebSearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	logger := utils.GetLogger(true)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	q.Set("no_redirect", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	logger.Logf("web search: %s", req.URL.String())
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search failed: %s", resp.Status)
	}

	var data ddgResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	var results []SearchResult
	for _, topic := range data.RelatedTopics {
		// Grouped topics carry no URL of their own.
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		title, _, _ := strings.Cut(topic.Text, " - ")
		results = append(results, SearchResult{
			Title:       title,
			URL:         topic.FirstURL,
			Description: topic.Text,
		})
		if len(results) == s.MaxResults {
			break
		}
	}
	logger.Logf("web search for %q returned %d results", query, len(results))
	return results, nil
}

// WebSearch runs query against DuckDuckGo with the default settings.
func WebSearch(ctx context.Context, query string) ([]SearchResult, error) {
	return NewWebSearcher("", 0).Search(ctx, query)
}

// FormatSearchResults renders results as a numbered list.
func FormatSearchResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return "No results found\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for '%s':\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n\n", i+1, r.Title, r.Description, r.URL)
	}
	return b.String()
}
