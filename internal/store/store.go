// ABOUTME: Store interface and record types for the invocation audit trail
// ABOUTME: Settled tool invocations are persisted for usage reporting

package store

import (
	"context"
	"time"
)

// Invocation outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Invocation is one settled tool execution.
type Invocation struct {
	ID         string
	SessionID  string
	Tool       string
	Provider   string
	StartedAt  time.Time
	DurationMs int64
	Outcome    string
	// ErrorKind holds the taxonomy code on failure, empty on success.
	ErrorKind string
}

// UsageSummary aggregates the audit trail for status reporting.
type UsageSummary struct {
	TotalInvocations int64            `json:"totalInvocations"`
	Successful       int64            `json:"successful"`
	Failed           int64            `json:"failed"`
	AvgDurationMs    float64          `json:"avgDurationMs"`
	ByTool           map[string]int64 `json:"byTool"`
}

// Store persists settled invocations.
type Store interface {
	RecordInvocation(ctx context.Context, inv *Invocation) error
	RecentInvocations(ctx context.Context, limit int) ([]*Invocation, error)
	UsageSummary(ctx context.Context) (*UsageSummary, error)
	Close() error
}
