// ABOUTME: Per-provider request shaping and response unwrapping strategies
// ABOUTME: A swappable table keyed by provider identity, not inheritance

package provider

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNotJSON indicates the unwrapped response is not valid structured data.
var ErrNotJSON = errors.New("response is not valid JSON")

// Request is a gateway-level dispatch payload before provider shaping.
type Request struct {
	// Operation names the extraction/analysis task, e.g. "extract_product_data".
	Operation string
	// Content is the document or prompt body the operation runs over.
	Content string
	// Model overrides the strategy's model when non-empty.
	Model string
}

// Strategy shapes requests for one provider and unwraps its responses.
type Strategy struct {
	// SystemPrompt is injected on every call for this provider.
	SystemPrompt string
	// Model is the provider's default model selection.
	Model string
	// MaxTokens bounds the response size.
	MaxTokens int64
	// Unwrap converts the raw completion text into structured data.
	Unwrap func(raw string) (json.RawMessage, error)
}

// Shape builds the provider call from a dispatch request.
func (s Strategy) Shape(req Request) CompletionRequest {
	model := s.Model
	if req.Model != "" {
		model = req.Model
	}
	prompt := req.Content
	if req.Operation != "" {
		prompt = "Task: " + req.Operation + "\n\n" + req.Content
	}
	return CompletionRequest{
		System:    s.SystemPrompt,
		Prompt:    prompt,
		Model:     model,
		MaxTokens: s.MaxTokens,
	}
}

const extractionSystemPrompt = "You are a procurement data extraction service. " +
	"Respond with a single JSON object and nothing else. " +
	"Never include prose, preambles, or markdown outside the JSON."

// DefaultStrategies returns the shipped strategy table. Callers may replace
// entries before registering endpoints.
func DefaultStrategies() map[string]Strategy {
	return map[string]Strategy{
		"anthropic": {
			SystemPrompt: extractionSystemPrompt,
			Model:        "claude-sonnet-4-5",
			MaxTokens:    4096,
			Unwrap:       UnwrapFencedJSON,
		},
		"bedrock": {
			SystemPrompt: extractionSystemPrompt,
			Model:        "anthropic.claude-sonnet-4-5-v1:0",
			MaxTokens:    4096,
			Unwrap:       UnwrapFencedJSON,
		},
		"openai": {
			// OpenAI-compatible endpoints tend to wrap JSON in fences even
			// when told not to, so the same unwrapper applies.
			SystemPrompt: extractionSystemPrompt,
			Model:        "gpt-4o",
			MaxTokens:    4096,
			Unwrap:       UnwrapFencedJSON,
		},
	}
}

// UnwrapFencedJSON strips markdown code fences and surrounding prose markers,
// then validates the remainder as JSON. Returns ErrNotJSON when the cleaned
// text is not structured data.
func UnwrapFencedJSON(raw string) (json.RawMessage, error) {
	cleaned := strings.TrimSpace(raw)

	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	if !json.Valid([]byte(cleaned)) {
		return nil, ErrNotJSON
	}
	return json.RawMessage(cleaned), nil
}
