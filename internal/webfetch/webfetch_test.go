package webfetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout/internal/config"
)

func testFetcher(respectRobots bool) *Fetcher {
	cfg := &config.Config{}
	cfg.WebFetch.RespectRobots = respectRobots
	cfg.WebFetch.TimeoutMs = 5000
	return NewFetcherFromConfig(cfg)
}

const samplePage = `<!doctype html>
<html>
<head><title>Sample Article</title><style>body { color: red }</style></head>
<body>
<nav><a href="/">home</a></nav>
<script>alert("tracking")</script>
<h1>Heading</h1>
<p>Useful <strong>content</strong> here.</p>
<footer>copyright</footer>
</body>
</html>`

func TestFetchConvertsPageToMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, samplePage)
	}))
	defer srv.Close()

	page, err := testFetcher(true).Fetch(context.Background(), srv.URL+"/article")
	require.NoError(t, err)

	assert.Equal(t, "Sample Article", page.Title)
	assert.Contains(t, page.Markdown, "# Heading")
	assert.Contains(t, page.Markdown, "**content**")
	assert.NotContains(t, page.Markdown, "alert", "scripts must be stripped")
	assert.NotContains(t, page.Markdown, "copyright", "footers must be stripped")
}

func TestFetchHonorsRobotsDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			io.WriteString(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		io.WriteString(w, samplePage)
	}))
	defer srv.Close()

	f := testFetcher(true)

	_, err := f.Fetch(context.Background(), srv.URL+"/private/page")
	assert.ErrorContains(t, err, "disallowed by robots.txt")

	_, err = f.Fetch(context.Background(), srv.URL+"/public/page")
	assert.NoError(t, err)
}

func TestFetchIgnoresRobotsWhenDisabled(t *testing.T) {
	robotsRequested := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsRequested = true
			io.WriteString(w, "User-agent: *\nDisallow: /\n")
			return
		}
		io.WriteString(w, samplePage)
	}))
	defer srv.Close()

	_, err := testFetcher(false).Fetch(context.Background(), srv.URL+"/anything")
	require.NoError(t, err)
	assert.False(t, robotsRequested)
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testFetcher(true).Fetch(context.Background(), srv.URL+"/down")
	assert.ErrorContains(t, err, "status 503")
}

func TestFetchRejectsHostlessURL(t *testing.T) {
	_, err := testFetcher(false).Fetch(context.Background(), "not a url at all ://")
	assert.Error(t, err)
}

func TestFetchTruncatesOversizedBodies(t *testing.T) {
	big := strings.Repeat("<p>filler filler filler</p>\n", 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><head><title>Big</title></head><body>"+big+"</body></html>")
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.WebFetch.MaxBodyBytes = 1024
	f := NewFetcherFromConfig(cfg)

	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(page.Markdown), 4096)
}
