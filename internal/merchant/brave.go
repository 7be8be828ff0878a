package merchant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// DefaultBraveBaseURL is the Brave web search endpoint.
const DefaultBraveBaseURL = "https://api.search.brave.com/res/v1/web/search"

// SearchResult is one web search hit.
type SearchResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// BraveClient queries the Brave Search API.
type BraveClient struct {
	HTTP    *http.Client
	APIKey  string
	BaseURL string // overridable for tests
}

// NewBraveClient builds a search client with the default endpoint.
func NewBraveClient(httpc *http.Client, apiKey string) *BraveClient {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &BraveClient{HTTP: httpc, APIKey: apiKey, BaseURL: DefaultBraveBaseURL}
}

// Search runs a web search and returns the result list, which may be empty.
func (c *BraveClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("merchant: brave search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("merchant: brave search failed: %s", resp.Status)
	}

	var out struct {
		Web struct {
			Results []SearchResult `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("merchant: brave decode: %w", err)
	}
	return out.Web.Results, nil
}
