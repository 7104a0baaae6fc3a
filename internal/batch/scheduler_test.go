// ABOUTME: Tests for the batch scheduler
// ABOUTME: Covers concurrency bounds, ordered results, per-item failure capture, and progress

package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingInvoker tracks peak concurrent invocations and fails scripted items.
type countingInvoker struct {
	mu      sync.Mutex
	active  int32
	peak    int32
	delay   time.Duration
	failIDs map[string]bool
}

func (c *countingInvoker) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	cur := atomic.AddInt32(&c.active, 1)
	defer atomic.AddInt32(&c.active, -1)
	for {
		old := atomic.LoadInt32(&c.peak)
		if cur <= old || atomic.CompareAndSwapInt32(&c.peak, old, cur) {
			break
		}
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var in struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(args, &in)
	c.mu.Lock()
	fail := c.failIDs[in.ID]
	c.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("simulated failure for %s", in.ID)
	}
	return json.RawMessage(fmt.Sprintf(`{"done":%q}`, in.ID)), nil
}

func makeItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		id := fmt.Sprintf("item-%d", i)
		items[i] = Item{ID: id, Args: json.RawMessage(fmt.Sprintf(`{"id":%q}`, id))}
	}
	return items
}

func TestScheduler_ConcurrencyNeverExceedsLimit(t *testing.T) {
	inv := &countingInvoker{delay: 20 * time.Millisecond}
	s := NewScheduler(SchedulerConfig{Invoker: inv, MaxConcurrency: 3})

	results, summary := s.Run(t.Context(), "generate_product_image", makeItems(8), nil)

	require.Len(t, results, 8)
	assert.Equal(t, 8, summary.Successful)
	assert.LessOrEqual(t, atomic.LoadInt32(&inv.peak), int32(3))
}

func TestScheduler_FewerItemsThanLimit(t *testing.T) {
	inv := &countingInvoker{delay: 10 * time.Millisecond}
	s := NewScheduler(SchedulerConfig{Invoker: inv, MaxConcurrency: 10})

	results, summary := s.Run(t.Context(), "generate_product_image", makeItems(2), nil)

	require.Len(t, results, 2)
	assert.Equal(t, 2, summary.Successful)
	assert.LessOrEqual(t, atomic.LoadInt32(&inv.peak), int32(2))
}

func TestScheduler_PerItemFailureDoesNotAbortBatch(t *testing.T) {
	inv := &countingInvoker{failIDs: map[string]bool{"item-2": true}}
	s := NewScheduler(SchedulerConfig{Invoker: inv, MaxConcurrency: 3})

	results, summary := s.Run(t.Context(), "generate_product_image", makeItems(5), nil)

	require.Len(t, results, 5)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 4, summary.Successful)
	assert.Equal(t, 1, summary.Failed)

	// Results are ordered by input position regardless of completion order.
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("item-%d", i), res.ItemID)
	}
	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Error, "simulated failure")
	assert.Nil(t, results[2].Result)
	assert.True(t, results[3].Success)
	assert.NotNil(t, results[3].Result)
}

func TestScheduler_ProgressReachesTotal(t *testing.T) {
	inv := &countingInvoker{}
	s := NewScheduler(SchedulerConfig{Invoker: inv, MaxConcurrency: 2})

	var (
		mu       sync.Mutex
		reports  []Progress
		lastSeen int
	)
	results, _ := s.Run(t.Context(), "generate_product_image", makeItems(4), func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, p)
		// Completed counts are handed out monotonically under the lock.
		assert.Greater(t, p.Completed, lastSeen)
		lastSeen = p.Completed
		assert.Equal(t, 4, p.Total)
	})

	require.Len(t, results, 4)
	require.Len(t, reports, 4)
	assert.Equal(t, 4, reports[len(reports)-1].Completed)
}

func TestScheduler_EmptyBatch(t *testing.T) {
	inv := &countingInvoker{}
	s := NewScheduler(SchedulerConfig{Invoker: inv, MaxConcurrency: 3})

	results, summary := s.Run(t.Context(), "generate_product_image", nil, nil)

	assert.Empty(t, results)
	assert.Equal(t, Summary{}, summary)
}
