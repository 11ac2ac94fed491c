// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/capitalize-ai/roundtable/pkg/metrics"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []ChatMessage
	MaxTokens    int
	Temperature  float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// TotalTokens is the prompt plus completion token count.
func (r *CompletionResponse) TotalTokens() int {
	return r.TokensIn + r.TokensOut
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	// A model the provider does not serve yields an error wrapping
	// ErrModelUnavailable.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Models returns the provider's model catalog.
	Models(ctx context.Context) ([]string, error)

	// Name returns the provider name.
	Name() string

	// DefaultModel is used when a request names no model.
	DefaultModel() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderLocal     Provider = "local"
)

// Options configures NewClient.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewClient creates a new LLM client based on provider, instrumented with
// prometheus metrics.
func NewClient(provider Provider, opts Options) (Client, error) {
	var (
		c   Client
		err error
	)
	switch provider {
	case ProviderAnthropic:
		c, err = NewAnthropicClient(opts.APIKey)
	case ProviderOpenAI:
		c, err = NewOpenAIClient(opts.APIKey, opts.BaseURL)
	case ProviderLocal:
		c, err = NewLocalClient(opts.BaseURL, opts.Model, opts.APIKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(c), nil
}

// Instrument wraps c so every completion records latency, status and token
// usage.
func Instrument(c Client) Client {
	return &instrumented{Client: c}
}

type instrumented struct {
	Client
}

func (i *instrumented) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = i.Client.DefaultModel()
	}

	start := time.Now()
	resp, err := i.Client.Complete(ctx, req)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		metrics.RecordCompletion(model, "ok", elapsed, resp.TokensIn, resp.TokensOut)
	case IsModelUnavailable(err):
		metrics.RecordCompletion(model, "model_unavailable", elapsed, 0, 0)
	default:
		metrics.RecordCompletion(model, "error", elapsed, 0, 0)
	}
	return resp, err
}
