// ABOUTME: Tests for session manager registration, sweep, and session state
// ABOUTME: Uses an in-memory fake transport

package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records sent messages and can be scripted to fail.
type fakeSender struct {
	mu     sync.Mutex
	sent   []any
	err    error
	closed bool
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

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestManager_AddAssignsUniqueIDs(t *testing.T) {
	m := NewManager(ManagerConfig{})

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		s := m.Add(&fakeSender{})
		_, dup := seen[s.ID]
		require.False(t, dup, "duplicate session id %s", s.ID)
		seen[s.ID] = struct{}{}
	}
	assert.Equal(t, 100, m.Count())
}

func TestManager_RemoveClosesSession(t *testing.T) {
	m := NewManager(ManagerConfig{})
	sender := &fakeSender{}
	s := m.Add(sender)

	m.Remove(s.ID)

	assert.True(t, s.Closed())
	assert.True(t, sender.isClosed())
	_, ok := m.Get(s.ID)
	assert.False(t, ok)

	// Removing again is a no-op.
	m.Remove(s.ID)
}

func TestManager_SweepRemovesIdleSessions(t *testing.T) {
	m := NewManager(ManagerConfig{InactivityWindow: time.Minute})
	idle := m.Add(&fakeSender{})
	active := m.Add(&fakeSender{})

	now := time.Now()
	idle.Touch(now.Add(-2 * time.Minute))
	active.Touch(now)

	removed := m.SweepOnce(now)

	assert.Equal(t, []string{idle.ID}, removed)
	_, ok := m.Get(idle.ID)
	assert.False(t, ok)
	_, ok = m.Get(active.ID)
	assert.True(t, ok)
}

func TestManager_SweepRemovesClosedSessions(t *testing.T) {
	m := NewManager(ManagerConfig{InactivityWindow: time.Hour})
	s := m.Add(&fakeSender{})
	s.Close()

	removed := m.SweepOnce(time.Now())
	assert.Contains(t, removed, s.ID)
}

func TestSession_SendAfterClose(t *testing.T) {
	m := NewManager(ManagerConfig{})
	s := m.Add(&fakeSender{})
	s.Close()

	err := s.Send("hello")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_SendPropagatesTransportError(t *testing.T) {
	m := NewManager(ManagerConfig{})
	sender := &fakeSender{err: errors.New("broken pipe")}
	s := m.Add(sender)

	err := s.Send("hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionClosed)
}

func TestSession_AuthLastWriteWins(t *testing.T) {
	m := NewManager(ManagerConfig{})
	s := m.Add(&fakeSender{})

	ok, _ := s.Authenticated()
	assert.False(t, ok)

	s.SetAuthenticated("token", "user-1")
	s.SetAuthenticated("api_key", "user-2")

	ok, method := s.Authenticated()
	assert.True(t, ok)
	assert.Equal(t, "api_key", method)
	assert.Equal(t, "user-2", s.Principal())
}

func TestSession_SubscriptionsIdempotent(t *testing.T) {
	m := NewManager(ManagerConfig{})
	s := m.Add(&fakeSender{})

	s.Subscribe("product.updated")
	s.Subscribe("product.updated")
	assert.True(t, s.IsSubscribed("product.updated"))
	assert.Len(t, s.Subscriptions(), 1)

	s.Unsubscribe("product.updated")
	assert.False(t, s.IsSubscribed("product.updated"))

	// Unsubscribing from a never-subscribed event is a no-op.
	s.Unsubscribe("never.subscribed")
}

func TestNewSessionID_Format(t *testing.T) {
	id := NewSessionID(time.Now())
	assert.Contains(t, id, "client-")
}
