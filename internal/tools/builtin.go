// ABOUTME: Builtin procurement tool pack registered at gateway startup
// ABOUTME: AI-backed tools dispatch through the provider router

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/procurehub/ai-gateway/internal/provider"
)

// Dispatcher routes shaped operations to an upstream provider.
// *provider.Router satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, providerName string, req provider.Request, opts provider.DispatchOptions) (json.RawMessage, error)
}

// RegisterBuiltins installs the procurement tool pack into the registry.
func RegisterBuiltins(r *Registry, dispatcher Dispatcher) {
	b := &builtinHandlers{dispatcher: dispatcher}

	r.Register(&Tool{
		Name:        "system_health_check",
		Description: "Report gateway liveness",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler:     b.HealthCheck,
	})
	r.Register(&Tool{
		Name:        "extract_product_data",
		Description: "Extract structured product attributes from supplier text",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"},"provider":{"type":"string"}},"required":["content"]}`),
		Handler:     b.aiOperation("extract_product_data"),
	})
	r.Register(&Tool{
		Name:        "analyze_requirements",
		Description: "Analyze tender requirements and return a structured breakdown",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"},"provider":{"type":"string"}},"required":["content"]}`),
		Handler:     b.aiOperation("analyze_requirements"),
	})
	r.Register(&Tool{
		Name:        "categorize_product",
		Description: "Assign a procurement category to a product",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"},"provider":{"type":"string"}},"required":["content"]}`),
		Handler:     b.aiOperation("categorize_product"),
	})
	r.Register(&Tool{
		Name:        "summarize_tender",
		Description: "Summarize a tender document",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"},"provider":{"type":"string"}},"required":["content"]}`),
		Handler:     b.aiOperation("summarize_tender"),
	})
	r.Register(&Tool{
		Name:        "generate_product_image",
		Description: "Derive an image generation spec for a product",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"product_name":{"type":"string"},"description":{"type":"string"},"template":{"type":"string"},"provider":{"type":"string"}},"required":["product_name"]}`),
		Handler:     b.GenerateProductImage,
	})
}

type builtinHandlers struct {
	dispatcher Dispatcher
}

// HealthCheck reports liveness without touching any upstream.
func (b *builtinHandlers) HealthCheck(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type aiOperationInput struct {
	Content  string `json:"content"`
	Provider string `json:"provider"`
}

// aiOperation builds a handler that dispatches the named operation upstream.
func (b *builtinHandlers) aiOperation(operation string) Handler {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in aiOperationInput
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
		return b.dispatcher.Dispatch(ctx, in.Provider, provider.Request{
			Operation: operation,
			Content:   in.Content,
		}, provider.DispatchOptions{})
	}
}

type generateImageInput struct {
	ProductName string `json:"product_name"`
	Description string `json:"description"`
	Template    string `json:"template"`
	Provider    string `json:"provider"`
}

// GenerateProductImage asks the provider for an image-generation spec using
// the requested template's composition rules.
func (b *builtinHandlers) GenerateProductImage(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in generateImageInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	tmpl := TemplateByName(in.Template)

	content := fmt.Sprintf("Product: %s\nDescription: %s\nTemplate: %s\nComposition: %s",
		in.ProductName, in.Description, tmpl.Name, tmpl.Composition)

	result, err := b.dispatcher.Dispatch(ctx, in.Provider, provider.Request{
		Operation: "generate_product_image",
		Content:   content,
	}, provider.DispatchOptions{})
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{
		"product_name": in.ProductName,
		"template":     tmpl.Name,
		"image_spec":   result,
	})
}
