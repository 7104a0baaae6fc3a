// ABOUTME: Thread-safe registry of named, schema-described operations
// ABOUTME: Single invocation surface shared by direct calls, workflows, and batches

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// Handler executes a tool invocation. Handlers are pure functions of their
// arguments and must not retain them.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Tool is a named, schema-described operation.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// ExecutionError wraps a handler failure, preserving the original message.
// The underlying error stays reachable through Unwrap so callers can classify
// typed failures (provider errors in particular) via errors.As.
type ExecutionError struct {
	Tool            string
	OriginalMessage string
	Err             error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %s", e.Tool, e.OriginalMessage)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Registry holds registered tools. Registration happens at startup; the last
// registration under a given name wins. The registry performs no retries;
// retry policy belongs to the caller.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates a Registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tool-registry"),
	}
}

// Register stores a tool, replacing any prior registration under the same name.
func (r *Registry) Register(tool *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		r.logger.Warn("tool re-registered, replacing previous handler", "tool", tool.Name)
	}
	r.tools[tool.Name] = tool
	r.logger.Debug("tool registered", "tool", tool.Name)
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs the named tool against args. Returns ErrToolNotFound for
// unknown names; handler failures (including schema violations and panics)
// come back as *ExecutionError so no invocation can crash the process.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (result json.RawMessage, err error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	if err := r.validateArgs(tool, args); err != nil {
		return nil, &ExecutionError{Tool: name, OriginalMessage: err.Error(), Err: err}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", name, "panic", rec)
			result = nil
			err = &ExecutionError{Tool: name, OriginalMessage: fmt.Sprintf("handler panicked: %v", rec)}
		}
	}()

	out, err := tool.Handler(ctx, args)
	if err != nil {
		return nil, &ExecutionError{Tool: name, OriginalMessage: err.Error(), Err: err}
	}
	return out, nil
}

// validateArgs checks args against the tool's JSON schema, if it has one.
func (r *Registry) validateArgs(tool *Tool, args json.RawMessage) error {
	if len(tool.InputSchema) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewBytesLoader(tool.InputSchema)
	docLoader := gojsonschema.NewBytesLoader(args)

	res, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("validating arguments: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid arguments: %v", msgs)
	}
	return nil
}
