package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scout/internal/config"
)

// Provider represents a logical LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// CompleteRequest is a provider-agnostic text completion request. System
// carries the agent's role framing; Prompt carries the task, accumulated
// context, and tool evidence.
type CompleteRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Client is the abstraction used by stage executors.
type Client interface {
	Complete(ctx context.Context, req CompleteRequest) (string, error)
}

const defaultMaxTokens = 2048

// NewClientFromConfig constructs a Client for the configured default
// provider and returns the resolved provider and model for logging.
func NewClientFromConfig(cfg *config.Config) (Client, Provider, string, error) {
	prov := Provider(cfg.LLM.DefaultProvider)

	switch prov {
	case ProviderOpenAI:
		openaiCfg := cfg.LLM.OpenAI
		if openaiCfg.APIKey == "" || openaiCfg.Model == "" {
			return nil, prov, openaiCfg.Model, errors.New("openai llm provider is not fully configured")
		}
		return &openAIClient{
			apiKey:  openaiCfg.APIKey,
			baseURL: openaiCfg.BaseURL,
			model:   openaiCfg.Model,
			http:    &http.Client{Timeout: 120 * time.Second},
		}, prov, openaiCfg.Model, nil
	case ProviderAnthropic:
		anthCfg := cfg.LLM.Anthropic
		if anthCfg.APIKey == "" || anthCfg.Model == "" {
			return nil, prov, anthCfg.Model, errors.New("anthropic llm provider is not fully configured")
		}
		return &anthropicClient{
			apiKey: anthCfg.APIKey,
			model:  anthCfg.Model,
			http:   &http.Client{Timeout: 120 * time.Second},
		}, prov, anthCfg.Model, nil
	case ProviderGoogle:
		googleCfg := cfg.LLM.Google
		if googleCfg.APIKey == "" || googleCfg.Model == "" {
			return nil, prov, googleCfg.Model, errors.New("google llm provider is not fully configured")
		}
		return &googleClient{
			apiKey: googleCfg.APIKey,
			model:  googleCfg.Model,
			http:   &http.Client{Timeout: 120 * time.Second},
		}, prov, googleCfg.Model, nil
	default:
		return nil, prov, "", fmt.Errorf("unsupported llm provider: %s", cfg.LLM.DefaultProvider)
	}
}

// openAIClient implements Client using OpenAI-compatible Chat Completions.
type openAIClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// anthropicClient implements Client using Anthropic's Messages API.
type anthropicClient struct {
	apiKey string
	model  string
	http   *http.Client
}

// googleClient implements Client using Google Gemini (Generative Language API).
type googleClient struct {
	apiKey string
	model  string
	http   *http.Client
}

// openAIChatRequest is a minimal representation of the Chat Completions API.
type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

// anthropicMessagesRequest & response are minimal shapes for Anthropic's Messages API.
type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicTextContent `json:"content"`
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessagesResponse struct {
	Content []anthropicTextContent `json:"content"`
}

// googleGenerateContentRequest & response are minimal shapes for Gemini's generateContent.
type googleGenerateContentRequest struct {
	Contents []googleContent `json:"contents"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text,omitempty"`
}

type googleGenerateContentResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func (c *openAIClient) Complete(ctx context.Context, req CompleteRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := openAIChatRequest{
		Model: c.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	endpoint = endpoint + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai chat completion failed with status %d", resp.StatusCode)
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openai chat completion returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// Complete for anthropicClient uses Anthropic's Messages API.
func (c *anthropicClient) Complete(ctx context.Context, req CompleteRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := anthropicMessagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages: []anthropicMessage{
			{
				Role: "user",
				Content: []anthropicTextContent{
					{Type: "text", Text: req.Prompt},
				},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := "https://api.anthropic.com/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("anthropic messages request failed with status %d", resp.StatusCode)
	}

	var parsed anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Content) == 0 {
		return "", errors.New("anthropic messages returned no content")
	}

	return parsed.Content[0].Text, nil
}

// Complete for googleClient uses Gemini's generateContent API.
func (c *googleClient) Complete(ctx context.Context, req CompleteRequest) (string, error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}

	body := googleGenerateContentRequest{
		Contents: []googleContent{
			{
				Parts: []googlePart{{Text: prompt}},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	base := "https://generativelanguage.googleapis.com/v1beta"
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, c.model, url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("google generateContent failed with status %d", resp.StatusCode)
	}

	var parsed googleGenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("google generateContent returned no candidates")
	}

	// Concatenate all parts' text for simplicity.
	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
