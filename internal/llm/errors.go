package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
)

// ErrModelUnavailable reports that the requested model does not exist or
// is not served by the provider.
var ErrModelUnavailable = errors.New("model unavailable")

// IsModelUnavailable reports whether err is a model-unavailable failure.
func IsModelUnavailable(err error) bool {
	return errors.Is(err, ErrModelUnavailable)
}

func unavailable(model string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrModelUnavailable, model, err)
}

// mentionsMissingModel matches provider messages such as
// "The model `x` does not exist" or "model \"x\" not found".
func mentionsMissingModel(msg string) bool {
	msg = strings.ToLower(msg)
	if !strings.Contains(msg, "model") {
		return false
	}
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "decommissioned")
}

func classifyOpenAIError(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		if code == "model_not_found" ||
			apiErr.HTTPStatusCode == http.StatusNotFound ||
			mentionsMissingModel(apiErr.Message) {
			return unavailable(model, err)
		}
		return err
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusNotFound {
		return unavailable(model, err)
	}
	return err
}

func classifyAnthropicError(model string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return unavailable(model, err)
	}
	if mentionsMissingModel(err.Error()) {
		return unavailable(model, err)
	}
	return err
}

// classifyLocalError inspects the flattened error strings langchaingo
// returns for OpenAI-compatible servers.
func classifyLocalError(model string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "status code: 404") || mentionsMissingModel(msg) {
		return unavailable(model, err)
	}
	return err
}
