package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/debug"
	"github.com/rhuss/formchat/pkg/provider"
)

// Config holds the settings for an OpenAI-compatible backend.
type Config struct {
	// Name identifies the backend flavor in logs and metrics
	// ("openai", "vllm", "litellm"). Defaults to "openai".
	Name string

	// BaseURL is the backend root, without the /v1 suffix.
	BaseURL string

	// APIKey is sent as a Bearer token when set.
	APIKey string

	// Timeout bounds a single HTTP request. Defaults to 30s.
	Timeout time.Duration

	// ModelMapping rewrites model names before they are sent, for proxies
	// such as LiteLLM that route on aliases.
	ModelMapping map[string]string
}

// Client performs HTTP requests against an OpenAI-compatible Chat Completions
// backend. It implements provider.Provider.
type Client struct {
	name       string
	httpClient *http.Client
	baseURL    string
	apiKey     string

	// ModelMapper is an optional function that transforms the model name
	// before sending it to the backend. If nil, the model name is used as-is.
	ModelMapper func(string) string
}

var _ provider.Provider = (*Client)(nil)

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openaicompat: BaseURL is required")
	}
	c := NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if cfg.Name != "" {
		c.name = cfg.Name
	}
	if len(cfg.ModelMapping) > 0 {
		mapping := cfg.ModelMapping
		c.ModelMapper = func(model string) string {
			if mapped, ok := mapping[model]; ok {
				return mapped
			}
			return model
		}
	}
	return c, nil
}

// NewClient creates a new Client for an OpenAI-compatible backend.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")

	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		name: "openai",
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return c.name
}

// Complete performs non-streaming inference against the Chat Completions endpoint.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	chatReq := ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		N:           1,
	}
	if c.ModelMapper != nil {
		chatReq.Model = c.ModelMapper(chatReq.Model)
	}
	if req.JSONOutput {
		chatReq.ResponseFormat = &ChatResponseFormat{Type: "json_object"}
	}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, ChatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	debug.Log("judge", "backend request", "url", url, "model", chatReq.Model, "messages", len(chatReq.Messages))
	debug.Raw("judge", string(body))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		e := api.NewServerError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
		e.Code = provider.CodeBadResponse
		return nil, e
	}
	if len(chatResp.Choices) == 0 {
		e := api.NewServerError("backend response has no choices")
		e.Code = provider.CodeBadResponse
		return nil, e
	}

	resp := &provider.Response{
		Content:      chatResp.Choices[0].Message.Content,
		Model:        chatResp.Model,
		FinishReason: chatResp.Choices[0].FinishReason,
	}
	if chatResp.Usage != nil {
		resp.Usage = provider.Usage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		}
	}
	debug.Log("judge", "backend response", "model", resp.Model, "finish_reason", resp.FinishReason,
		"content", debug.Truncate(resp.Content, 200))
	return resp, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
