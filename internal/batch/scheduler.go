// ABOUTME: Runs one registered operation over N independent inputs under bounded concurrency
// ABOUTME: Captures per-item failures without aborting the batch; results keep input order

package batch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrency bounds in-flight items when no limit is configured.
const DefaultMaxConcurrency = 3

// Item is one input of a batch job.
type Item struct {
	ID   string
	Args json.RawMessage
}

// ItemResult is the settled outcome of one item, aligned to input order.
type ItemResult struct {
	ItemID  string          `json:"itemId"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Summary aggregates a finished batch.
type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Progress is reported after each item settles.
type Progress struct {
	Completed   int    `json:"completed"`
	Total       int    `json:"total"`
	CurrentItem string `json:"currentItem"`
}

// Invoker executes a named operation. *tools.Registry satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// Scheduler fans one operation out over many inputs with a concurrency ceiling.
type Scheduler struct {
	invoker        Invoker
	maxConcurrency int
	logger         *slog.Logger
}

// SchedulerConfig contains construction options for the Scheduler.
type SchedulerConfig struct {
	Invoker        Invoker
	MaxConcurrency int
	Logger         *slog.Logger
}

// NewScheduler creates a Scheduler. Pass nil logger for default.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		invoker:        cfg.Invoker,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         logger.With("component", "batch-scheduler"),
	}
}

// Run executes toolName against every item with at most K = min(configured,
// N) items in flight. Per-item failures are captured in the result slice and
// never abort the batch. onProgress, when non-nil, fires after each item
// settles. Results preserve input order irrespective of completion order.
func (s *Scheduler) Run(ctx context.Context, toolName string, items []Item, onProgress func(Progress)) ([]ItemResult, Summary) {
	total := len(items)
	results := make([]ItemResult, total)
	if total == 0 {
		return results, Summary{}
	}

	limit := s.maxConcurrency
	if total < limit {
		limit = total
	}

	var (
		mu        sync.Mutex
		completed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, item := range items {
		g.Go(func() error {
			out, err := s.invoker.Invoke(gctx, toolName, item.Args)
			res := ItemResult{ItemID: item.ID, Success: err == nil}
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Result = out
			}
			results[i] = res

			// Progress fires under the lock so completed counts arrive in order.
			mu.Lock()
			completed++
			if onProgress != nil {
				onProgress(Progress{Completed: completed, Total: total, CurrentItem: item.ID})
			}
			mu.Unlock()
			// Item failures never abort the batch.
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{Total: total}
	for _, res := range results {
		if res.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}

	s.logger.Info("batch finished",
		"tool", toolName,
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed,
	)
	return results, summary
}
