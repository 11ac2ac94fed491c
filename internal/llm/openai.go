package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const openAIDefaultModel = "gpt-4o"

// OpenAIClient is the OpenAI LLM client.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client. A non-empty baseURL points it
// at an OpenAI-compatible endpoint.
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
	}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// DefaultModel returns the model used when a request names none.
func (c *OpenAIClient) DefaultModel() string {
	return openAIDefaultModel
}

// Models lists the chat models the account can use.
func (c *OpenAIClient) Models(ctx context.Context) ([]string, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list openai models: %w", err)
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if strings.HasPrefix(m.ID, "gpt-") || strings.HasPrefix(m.ID, "o1") {
			models = append(models, m.ID)
		}
	}
	if len(models) == 0 {
		for _, m := range list.Models {
			models = append(models, m.ID)
		}
	}
	sort.Strings(models)
	return models, nil
}

// Complete sends a completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = openAIDefaultModel
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, classifyOpenAIError(model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices for %s", model)
	}

	return &CompletionResponse{
		Content:    resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: string(resp.Choices[0].FinishReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
