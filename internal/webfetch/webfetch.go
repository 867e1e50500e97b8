package webfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"

	"scout/internal/config"
)

const (
	defaultUserAgent    = "scout/1.0 (+research agent)"
	defaultMaxBodyBytes = 2 << 20 // 2 MiB
)

// Page is the markdown rendering of one fetched web page.
type Page struct {
	URL      string
	Title    string
	Markdown string
}

// Fetcher retrieves a web page and converts it to markdown for use as
// research evidence. Robots exclusion is honored when configured.
type Fetcher struct {
	client        *http.Client
	userAgent     string
	respectRobots bool
	maxBodyBytes  int64
}

// NewFetcherFromConfig builds a Fetcher from configuration.
func NewFetcherFromConfig(cfg *config.Config) *Fetcher {
	timeoutMs := cfg.WebFetch.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 15000
	}

	ua := cfg.WebFetch.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	maxBody := int64(cfg.WebFetch.MaxBodyBytes)
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	return &Fetcher{
		client:        &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		userAgent:     ua,
		respectRobots: cfg.WebFetch.RespectRobots,
		maxBodyBytes:  maxBody,
	}
}

// allowed checks the site's robots.txt for the target path. A robots.txt
// that cannot be fetched or parsed allows the fetch.
func (f *Fetcher) allowed(ctx context.Context, target *url.URL) bool {
	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return true
	}
	defer resp.Body.Close()

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		return true
	}

	return robots.TestAgent(target.Path, f.userAgent)
}

// Fetch retrieves the URL and returns its markdown rendering.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", rawURL)
	}

	if f.respectRobots && !f.allowed(ctx, u) {
		return nil, fmt.Errorf("fetch of %s disallowed by robots.txt", u.String())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch of %s failed with status %d", u.String(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	// Strip non-content elements before conversion so the markdown stays
	// focused on readable text.
	doc.Find("script, style, noscript, nav, footer, iframe").Remove()

	htmlStr, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(htmlStr) == "" {
		htmlStr = string(body)
	}

	converter := htmlmd.NewConverter(u.Host, true, nil)
	markdown, err := converter.ConvertString(htmlStr)
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}

	return &Page{
		URL:      u.String(),
		Title:    title,
		Markdown: strings.TrimSpace(markdown),
	}, nil
}
