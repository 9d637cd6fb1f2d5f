// Package search defines the Search Provider collaborator (C2) the
// Planner's Search action drives, plus two concrete providers selected by
// the SEARCH_PROVIDER environment variable: Tavily (API-key based) and
// DuckDuckGo's keyless instant-answer API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/oedrhq/engine/utils"
)

// Result is one organic search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Provider performs a web search for query, returning at most k results.
type Provider interface {
	Search(ctx context.Context, query string, k int) ([]Result, error)
}

// Name identifies a configured provider, matching the engine's
// SEARCH_PROVIDER environment variable.
type Name string

const (
	Tavily     Name = "tavily"
	DuckDuckGo Name = "duckduckgo"
)

var ErrUnsupportedProvider = fmt.Errorf("unsupported search provider")

// New constructs a Provider for name. DuckDuckGo needs no API key.
func New(name Name, apiKey string) (Provider, error) {
	switch name {
	case Tavily:
		return tavilyProvider{apiKey: apiKey, client: http.DefaultClient, baseURL: "https://api.tavily.com/search"}, nil
	case DuckDuckGo:
		return duckDuckGoProvider{client: http.DefaultClient, baseURL: "https://api.duckduckgo.com/"}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

type tavilyProvider struct {
	apiKey  string
	client  *http.Client
	baseURL string
}

func (p tavilyProvider) Search(ctx context.Context, query string, k int) ([]Result, error) {
	payload := map[string]any{
		"api_key":        p.apiKey,
		"query":          query,
		"max_results":    k,
		"search_depth":   "basic",
		"include_answer": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tavily returned status %d", resp.StatusCode)
	}

	var raw struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	out := make([]Result, 0, len(raw.Results))
	for i, r := range raw.Results {
		if i >= k {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return out, nil
}

type duckDuckGoProvider struct {
	client  *http.Client
	baseURL string
}

func (p duckDuckGoProvider) Search(ctx context.Context, query string, k int) ([]Result, error) {
	url := fmt.Sprintf("%s?q=%s&format=json&no_html=1&skip_disambig=1", p.baseURL, utils.UrlQuery(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build duckduckgo request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	var raw struct {
		AbstractURL  string `json:"AbstractURL"`
		Heading      string `json:"Heading"`
		AbstractText string `json:"AbstractText"`
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode duckduckgo response: %w", err)
	}

	var out []Result
	if raw.AbstractURL != "" {
		out = append(out, Result{Title: raw.Heading, URL: raw.AbstractURL, Snippet: raw.AbstractText})
	}
	for _, t := range raw.RelatedTopics {
		if len(out) >= k {
			break
		}
		if t.FirstURL == "" {
			continue
		}
		out = append(out, Result{Title: t.Text, URL: t.FirstURL, Snippet: t.Text})
	}
	return out, nil
}
