package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scout/internal/config"
)

// ErrNoToken is returned by SearchCode when no token is configured. GitHub
// rejects unauthenticated code search, so callers treat this as "tool not
// available" rather than a failure.
var ErrNoToken = errors.New("github code search requires a token")

// Repo is one repository search hit.
type Repo struct {
	FullName    string
	Description string
	Stars       int
	URL         string
}

// CodeHit is one code search hit.
type CodeHit struct {
	Repo string
	Path string
	URL  string
}

// Client searches GitHub repositories and code via the REST API. A token
// is optional; unauthenticated requests work with tighter rate limits
// (code search always requires a token).
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClientFromConfig builds a Client from configuration.
func NewClientFromConfig(cfg *config.Config) *Client {
	base := strings.TrimRight(cfg.GitHub.BaseURL, "/")
	if base == "" {
		base = "https://api.github.com"
	}

	timeoutMs := cfg.GitHub.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}

	return &Client{
		token:   cfg.GitHub.Token,
		baseURL: base,
		http:    &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
	}
}

type repoSearchResponse struct {
	Items []struct {
		FullName    string `json:"full_name"`
		Description string `json:"description"`
		Stars       int    `json:"stargazers_count"`
		HTMLURL     string `json:"html_url"`
	} `json:"items"`
}

type codeSearchResponse struct {
	Items []struct {
		Path       string `json:"path"`
		HTMLURL    string `json:"html_url"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	} `json:"items"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github search failed with status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// SearchRepositories returns up to limit repositories matching the query,
// ordered by stars.
func (c *Client) SearchRepositories(ctx context.Context, query string, limit int) ([]Repo, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty github query")
	}
	if limit <= 0 {
		limit = 5
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("sort", "stars")
	values.Set("order", "desc")
	values.Set("per_page", strconv.Itoa(limit))

	var parsed repoSearchResponse
	if err := c.get(ctx, "/search/repositories", values, &parsed); err != nil {
		return nil, err
	}

	out := make([]Repo, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		out = append(out, Repo{
			FullName:    item.FullName,
			Description: item.Description,
			Stars:       item.Stars,
			URL:         item.HTMLURL,
		})
	}
	return out, nil
}

// SearchCode returns up to limit code hits matching the query. GitHub
// rejects unauthenticated code search, so a token must be configured.
func (c *Client) SearchCode(ctx context.Context, query string, limit int) ([]CodeHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty github query")
	}
	if c.token == "" {
		return nil, ErrNoToken
	}
	if limit <= 0 {
		limit = 5
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("per_page", strconv.Itoa(limit))

	var parsed codeSearchResponse
	if err := c.get(ctx, "/search/code", values, &parsed); err != nil {
		return nil, err
	}

	out := make([]CodeHit, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		out = append(out, CodeHit{
			Repo: item.Repository.FullName,
			Path: item.Path,
			URL:  item.HTMLURL,
		})
	}
	return out, nil
}
