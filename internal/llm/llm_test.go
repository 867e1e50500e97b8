package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout/internal/config"
)

func TestNewClientFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "openai"
	cfg.LLM.OpenAI.APIKey = "sk-test"
	cfg.LLM.OpenAI.Model = "gpt-4o-mini"

	client, provider, model, err := NewClientFromConfig(cfg)
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, ProviderOpenAI, provider)
	assert.Equal(t, "gpt-4o-mini", model)
}

func TestNewClientFromConfigRejectsIncomplete(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "anthropic"
	cfg.LLM.Anthropic.APIKey = "key-without-model"

	_, _, _, err := NewClientFromConfig(cfg)
	assert.ErrorContains(t, err, "not fully configured")

	cfg.LLM.DefaultProvider = "llama"
	_, _, _, err = NewClientFromConfig(cfg)
	assert.ErrorContains(t, err, "unsupported llm provider")
}

func TestOpenAICompleteRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req openAIChatRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "you are a researcher", req.Messages[0].Content)
		assert.Equal(t, "find things", req.Messages[1].Content)
		assert.Equal(t, defaultMaxTokens, req.MaxTokens)

		io.WriteString(w, `{"choices": [{"message": {"role": "assistant", "content": "here are findings"}}]}`)
	}))
	defer srv.Close()

	c := &openAIClient{
		apiKey:  "sk-test",
		baseURL: srv.URL,
		model:   "gpt-4o-mini",
		http:    &http.Client{Timeout: 5 * time.Second},
	}

	out, err := c.Complete(context.Background(), CompleteRequest{
		System: "you are a researcher",
		Prompt: "find things",
	})
	require.NoError(t, err)
	assert.Equal(t, "here are findings", out)
}

func TestOpenAICompleteSurfacesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &openAIClient{apiKey: "bad", baseURL: srv.URL, model: "m", http: srv.Client()}

	_, err := c.Complete(context.Background(), CompleteRequest{Prompt: "p"})
	assert.ErrorContains(t, err, "status 401")
}

func TestOpenAICompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices": []}`)
	}))
	defer srv.Close()

	c := &openAIClient{apiKey: "k", baseURL: srv.URL, model: "m", http: srv.Client()}

	_, err := c.Complete(context.Background(), CompleteRequest{Prompt: "p"})
	assert.ErrorContains(t, err, "no choices")
}
