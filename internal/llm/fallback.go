package llm

import (
	"context"
	"fmt"
	"slices"

	"github.com/capitalize-ai/roundtable/pkg/metrics"
)

// smallModels are cheap, widely served models tried before the rest of the
// catalog when a persona's model is unavailable.
var smallModels = []string{
	"gpt-4o-mini",
	"gpt-3.5-turbo",
	"claude-3-5-haiku-20241022",
	"claude-3-haiku-20240307",
}

// FallbackModel picks a replacement for failed from the provider's live
// catalog: preferred if served, then a known small model, then the first
// catalog entry, then the client default. It returns "" when nothing
// other than failed is available.
func FallbackModel(ctx context.Context, c Client, preferred, failed string) string {
	catalog, err := c.Models(ctx)
	if err != nil {
		catalog = nil
	}

	usable := func(m string) bool { return m != "" && m != failed }

	if usable(preferred) && slices.Contains(catalog, preferred) {
		return preferred
	}
	for _, m := range smallModels {
		if usable(m) && slices.Contains(catalog, m) {
			return m
		}
	}
	for _, m := range catalog {
		if usable(m) {
			return m
		}
	}
	if def := c.DefaultModel(); usable(def) {
		return def
	}
	return ""
}

// CompleteWithFallback sends req and, if the model is unavailable, retries
// exactly once with FallbackModel. The bool reports whether the fallback
// model produced the response.
func CompleteWithFallback(ctx context.Context, c Client, req *CompletionRequest, preferred string) (*CompletionResponse, bool, error) {
	resp, err := c.Complete(ctx, req)
	if err == nil {
		return resp, false, nil
	}
	if !IsModelUnavailable(err) {
		return nil, false, err
	}

	requested := req.Model
	if requested == "" {
		requested = c.DefaultModel()
	}
	fallback := FallbackModel(ctx, c, preferred, requested)
	if fallback == "" {
		return nil, false, err
	}

	metrics.RecordFallback(requested, fallback)
	retry := *req
	retry.Model = fallback
	resp, retryErr := c.Complete(ctx, &retry)
	if retryErr != nil {
		return nil, true, fmt.Errorf("fallback %s -> %s failed (%v): %w", requested, fallback, err, retryErr)
	}
	return resp, true, nil
}
