package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scout/internal/config"
)

// Request represents a provider-agnostic web search request.
type Request struct {
	Query   string
	Limit   int
	Timeout time.Duration
}

// Result represents a single search hit from a provider.
type Result struct {
	Title       string
	Description string
	URL         string
}

// Provider defines the contract for pluggable search providers.
// Implementations map a provider-agnostic Request into provider-specific
// API calls and normalize results back into the shared Result shape.
// Providers should respect the Limit and Timeout fields where possible
// and avoid returning sensitive configuration details in errors.
type Provider interface {
	Search(ctx context.Context, req *Request) ([]Result, error)
}

// NewProviderFromConfig constructs a search Provider based on
// configuration. Serper is the default; a self-hosted SearxNG instance is
// supported as an alternative. The Provider interface is intentionally
// narrow so additional providers can be added without touching callers.
func NewProviderFromConfig(cfg *config.Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	providerName := strings.ToLower(strings.TrimSpace(cfg.Search.Provider))
	if providerName == "" {
		providerName = "serper"
	}

	switch providerName {
	case "serper":
		return NewSerperProvider(cfg.Search)
	case "searxng":
		return NewSearxngProvider(cfg.Search)
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", providerName)
	}
}

// SerperProvider implements Provider using the Serper Google-search API.
type SerperProvider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultLimit int
	timeout      time.Duration
}

// NewSerperProvider creates a SerperProvider from SearchConfig.
func NewSerperProvider(cfg config.SearchConfig) (*SerperProvider, error) {
	if strings.TrimSpace(cfg.Serper.APIKey) == "" {
		return nil, fmt.Errorf("serper.apiKey is required when the serper provider is selected")
	}

	base := strings.TrimRight(cfg.Serper.BaseURL, "/")
	if base == "" {
		base = "https://google.serper.dev"
	}

	timeoutMs := cfg.Serper.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = cfg.TimeoutMs
	}
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}

	defaultLimit := cfg.MaxResults
	if defaultLimit <= 0 {
		defaultLimit = 5
	}

	return &SerperProvider{
		apiKey:       cfg.Serper.APIKey,
		baseURL:      base,
		client:       &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		defaultLimit: defaultLimit,
		timeout:      time.Duration(timeoutMs) * time.Millisecond,
	}, nil
}

// serperResponse models only the subset of the Serper JSON response we
// care about for basic web search.
type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search executes a query against the Serper API.
func (p *SerperProvider) Search(ctx context.Context, req *Request) ([]Result, error) {
	if req == nil {
		return nil, fmt.Errorf("nil search request")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("empty search query")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = p.defaultLimit
	}

	payload, err := json.Marshal(map[string]any{
		"q":   req.Query,
		"num": limit,
	})
	if err != nil {
		return nil, err
	}

	timeout := p.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper search failed with status %d", resp.StatusCode)
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(parsed.Organic))
	for _, r := range parsed.Organic {
		if strings.TrimSpace(r.Link) == "" {
			continue
		}
		out = append(out, Result{
			Title:       r.Title,
			Description: r.Snippet,
			URL:         r.Link,
		})
		if len(out) >= limit {
			break
		}
	}

	return out, nil
}

// SearxngProvider implements Provider using a SearxNG instance with the
// JSON API enabled.
type SearxngProvider struct {
	baseURL      string
	client       *http.Client
	defaultLimit int
	timeout      time.Duration
}

// NewSearxngProvider creates a new SearxngProvider from SearchConfig.
func NewSearxngProvider(cfg config.SearchConfig) (*SearxngProvider, error) {
	base := strings.TrimRight(cfg.Searxng.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("searxng.baseURL is required when the searxng provider is selected")
	}

	// Prefer provider-specific timeout, then generic search timeout, with a
	// conservative fallback.
	timeoutMs := cfg.Searxng.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = cfg.TimeoutMs
	}
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}

	defaultLimit := cfg.Searxng.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = 5
	}

	return &SearxngProvider{
		baseURL:      base,
		client:       &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		defaultLimit: defaultLimit,
		timeout:      time.Duration(timeoutMs) * time.Millisecond,
	}, nil
}

// searxngResponse models only the subset of the SearxNG JSON response
// that we care about for basic web search.
type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search executes a search query against the configured SearxNG instance.
func (p *SearxngProvider) Search(ctx context.Context, req *Request) ([]Result, error) {
	if req == nil {
		return nil, fmt.Errorf("nil search request")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("empty search query")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = p.defaultLimit
	}

	values := url.Values{}
	values.Set("q", req.Query)
	values.Set("format", "json")
	values.Set("limit", strconv.Itoa(limit))
	values.Set("categories", "general")

	// SearxNG exposes its search API on /search and, by default, expects
	// POST requests. Sending a form-encoded POST avoids 403s from method
	// restrictions.
	endpoint := p.baseURL + "/search"
	encoded := values.Encode()

	timeout := p.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng search failed with status %d", resp.StatusCode)
	}

	var payload searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(payload.Results))
	for _, r := range payload.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, Result{
			Title:       r.Title,
			Description: r.Content,
			URL:         r.URL,
		})
		if len(out) >= limit {
			break
		}
	}

	return out, nil
}
