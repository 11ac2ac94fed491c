package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// LocalClient talks to an OpenAI-compatible server such as Ollama through
// langchaingo.
type LocalClient struct {
	llm   llms.Model
	model string
}

// NewLocalClient creates a client for the server at baseURL serving model.
func NewLocalClient(baseURL, model, token string) (*LocalClient, error) {
	if baseURL == "" {
		return nil, errors.New("local LLM base URL is required")
	}
	if model == "" {
		return nil, errors.New("local LLM model is required")
	}
	if token == "" {
		token = "local"
	}

	llm, err := lcopenai.New(
		lcopenai.WithToken(token),
		lcopenai.WithBaseURL(baseURL),
		lcopenai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create local LLM client: %w", err)
	}

	return &LocalClient{llm: llm, model: model}, nil
}

// Name returns the provider name.
func (c *LocalClient) Name() string {
	return "local"
}

// DefaultModel returns the configured model.
func (c *LocalClient) DefaultModel() string {
	return c.model
}

// Models returns the single configured model.
func (c *LocalClient) Models(ctx context.Context) ([]string, error) {
	return []string{c.model}, nil
}

// Complete sends a completion request.
func (c *LocalClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}

	content := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		role := llms.ChatMessageTypeHuman
		if msg.Role == RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}

	opts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, classifyLocalError(model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("local model %s returned no choices", model)
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:    choice.Content,
		Model:      model,
		TokensIn:   intInfo(choice.GenerationInfo, "PromptTokens"),
		TokensOut:  intInfo(choice.GenerationInfo, "CompletionTokens"),
		StopReason: choice.StopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
