// ABOUTME: Tests for best-effort event fan-out to subscribed sessions
// ABOUTME: Covers subscription filtering and dead-transport removal

package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurehub/ai-gateway/internal/session"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []any
	err  error
}

func (f *fakeSender) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeSender) Close() error { return nil }

func (f *fakeSender) received() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.sent...)
}

func TestBroadcast_OnlySubscribedSessionsReceive(t *testing.T) {
	m := session.NewManager(session.ManagerConfig{})
	b := NewBroadcaster(m, nil)

	subbed := &fakeSender{}
	other := &fakeSender{}
	s1 := m.Add(subbed)
	m.Add(other)

	s1.Subscribe("batch.progress")

	n := b.Broadcast("batch.progress", map[string]int{"completed": 1})
	assert.Equal(t, 1, n)
	assert.Len(t, subbed.received(), 1)
	assert.Empty(t, other.received())

	evt, ok := subbed.received()[0].(Event)
	require.True(t, ok)
	assert.Equal(t, "event", evt.Type)
	assert.Equal(t, "batch.progress", evt.EventType)
}

func TestBroadcast_UnsubscribeStopsDelivery(t *testing.T) {
	m := session.NewManager(session.ManagerConfig{})
	b := NewBroadcaster(m, nil)

	sender := &fakeSender{}
	s := m.Add(sender)

	s.Subscribe("product.updated")
	s.Unsubscribe("product.updated")

	n := b.Broadcast("product.updated", nil)
	assert.Equal(t, 0, n)
	assert.Empty(t, sender.received())
}

func TestBroadcast_DeadTransportRemovedImmediately(t *testing.T) {
	m := session.NewManager(session.ManagerConfig{})
	b := NewBroadcaster(m, nil)

	dead := &fakeSender{err: errors.New("connection reset")}
	s := m.Add(dead)
	s.Subscribe("tender.created")

	n := b.Broadcast("tender.created", nil)
	assert.Equal(t, 0, n)

	_, ok := m.Get(s.ID)
	assert.False(t, ok, "non-sendable session must be removed from the registry")
}

func TestBroadcast_NoSubscribersIsNoop(t *testing.T) {
	m := session.NewManager(session.ManagerConfig{})
	b := NewBroadcaster(m, nil)

	assert.Equal(t, 0, b.Broadcast("anything", nil))
}
