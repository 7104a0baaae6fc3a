// ABOUTME: Workflow engine running named multi-step processes against one session
// ABOUTME: Emits per-step progress and never retracts already-delivered step results

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/procurehub/ai-gateway/internal/provider"
)

// Step status values carried on progress updates.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// ErrUnknownProcess is returned when no process is registered under the
// requested name.
var ErrUnknownProcess = errors.New("unknown process type")

// Dispatcher routes shaped operations to an upstream provider.
// *provider.Router satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, providerName string, req provider.Request, opts provider.DispatchOptions) (json.RawMessage, error)
}

// Update describes one step transition. Emitted once with status processing
// when the step starts and once with completed or error when it settles.
type Update struct {
	Step       int            `json:"step"`
	TotalSteps int            `json:"totalSteps"`
	StepName   string         `json:"stepName"`
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
}

// Input selects the process and carries the material it runs against.
type Input struct {
	ProcessType string
	Content     string
	Provider    string
}

// Run is the mutable state of one process execution, handed to each step.
type Run struct {
	Content  string
	Provider string

	// Results holds settled step results keyed by step name. Steps read
	// their predecessors' output from here.
	Results map[string]map[string]any

	dispatcher Dispatcher
}

// Dispatch sends one shaped operation to the run's provider.
func (r *Run) Dispatch(ctx context.Context, operation, content string) (json.RawMessage, error) {
	return r.dispatcher.Dispatch(ctx, r.Provider, provider.Request{
		Operation: operation,
		Content:   content,
	}, provider.DispatchOptions{})
}

// StepFunc executes one step and returns its partial result.
type StepFunc func(ctx context.Context, run *Run) (map[string]any, error)

// Step is one ordered unit of a process.
type Step struct {
	Name string
	Run  StepFunc

	// ContainFailure, when set, converts a step failure into a completed
	// result so the run continues instead of aborting.
	ContainFailure func(err error) map[string]any
}

// Process is a named ordered step sequence.
type Process struct {
	Name  string
	Steps []Step
}

// Engine holds the process registry and executes runs.
type Engine struct {
	mu        sync.RWMutex
	processes map[string]Process

	dispatcher Dispatcher
	logger     *slog.Logger
}

// EngineConfig contains construction options for the Engine.
type EngineConfig struct {
	Dispatcher Dispatcher
	Logger     *slog.Logger
}

// NewEngine creates an Engine with an empty process registry.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		processes:  make(map[string]Process),
		dispatcher: cfg.Dispatcher,
		logger:     logger.With("component", "workflow-engine"),
	}
}

// Register installs a process, replacing any prior process of the same name.
func (e *Engine) Register(p Process) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processes[p.Name] = p
}

// ProcessNames returns the registered process names, sorted.
func (e *Engine) ProcessNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.processes))
	for name := range e.processes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named process step by step. emit fires for every step
// transition; already-emitted step results are never retracted. On a
// non-contained step failure the partial results accumulated so far are
// returned alongside the error so callers can report them.
func (e *Engine) Execute(ctx context.Context, in Input, emit func(Update)) (map[string]any, error) {
	e.mu.RLock()
	proc, ok := e.processes[in.ProcessType]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcess, in.ProcessType)
	}
	if emit == nil {
		emit = func(Update) {}
	}

	run := &Run{
		Content:    in.Content,
		Provider:   in.Provider,
		Results:    make(map[string]map[string]any),
		dispatcher: e.dispatcher,
	}
	total := len(proc.Steps)
	combined := make(map[string]any, total)

	for i, step := range proc.Steps {
		emit(Update{
			Step:       i + 1,
			TotalSteps: total,
			StepName:   step.Name,
			Status:     StatusProcessing,
			Message:    fmt.Sprintf("running %s", step.Name),
		})

		result, err := step.Run(ctx, run)
		if err != nil {
			if step.ContainFailure != nil {
				result = step.ContainFailure(err)
				e.logger.Warn("step failure contained",
					"process", proc.Name, "step", step.Name, "error", err)
			} else {
				e.logger.Error("step failed",
					"process", proc.Name, "step", step.Name, "error", err)
				emit(Update{
					Step:       i + 1,
					TotalSteps: total,
					StepName:   step.Name,
					Status:     StatusError,
					Message:    err.Error(),
				})
				return combined, fmt.Errorf("step %s: %w", step.Name, err)
			}
		}

		run.Results[step.Name] = result
		combined[step.Name] = result
		emit(Update{
			Step:       i + 1,
			TotalSteps: total,
			StepName:   step.Name,
			Status:     StatusCompleted,
			Result:     result,
		})
	}

	return combined, nil
}
