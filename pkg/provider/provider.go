package provider

import (
	"context"
	"errors"

	"github.com/rhuss/formchat/pkg/api"
)

// Provider abstracts an LLM inference backend used by the judge.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "vllm", "litellm").
	Name() string

	// Complete performs non-streaming inference.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}

// Message is one chat message sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the backend-facing completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`

	// JSONOutput asks the backend to constrain output to a JSON object.
	// Backends that ignore it still work; the caller parses free text.
	JSONOutput bool `json:"-"`
}

// Response is the backend's complete non-streaming response.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Usage holds token counts reported by the backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Error codes set on backend APIErrors.
const (
	CodeRateLimited  = "rate_limited"
	CodeUnavailable  = "backend_unavailable"
	CodeConnection   = "backend_connection"
	CodeAuth         = "backend_auth"
	CodeBadRequest   = "backend_rejected"
	CodeBadResponse  = "backend_bad_response"
	CodeModelMissing = "model_not_found"
)

// IsTransient reports whether a backend error is worth retrying.
func IsTransient(err error) bool {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case CodeRateLimited, CodeUnavailable, CodeConnection:
		return true
	default:
		return false
	}
}
