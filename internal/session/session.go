// ABOUTME: Session type: one realtime client connection with auth and subscription state
// ABOUTME: Owns its transport handle exclusively; writes are serialized

package session

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionClosed indicates a send was attempted on a closed session.
var ErrSessionClosed = errors.New("session closed")

// Sender is the transport handle a session owns exclusively.
// A websocket connection wrapper satisfies it; tests use fakes.
type Sender interface {
	Send(v any) error
	Close() error
}

// Session is one connected realtime client. State machine:
// Connected(unauthenticated) -> Authenticated -> Closed (terminal).
// Subscription changes are side effects, not state transitions.
type Session struct {
	ID string

	mu            sync.Mutex
	sender        Sender
	authenticated bool
	authMethod    string
	principal     string
	subscriptions map[string]struct{}
	connectedAt   time.Time
	lastActivity  time.Time
	closed        bool
}

func newSession(id string, sender Sender, now time.Time) *Session {
	return &Session{
		ID:            id,
		sender:        sender,
		subscriptions: make(map[string]struct{}),
		connectedAt:   now,
		lastActivity:  now,
	}
}

// Send writes one message to the transport. Concurrent callers are
// serialized so interleaved frames cannot corrupt the stream.
func (s *Session) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	return s.sender.Send(v)
}

// Close transitions the session to its terminal state and closes the transport.
// Safe to call multiple times.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	_ = s.sender.Close()
}

// Closed reports whether the session reached its terminal state.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SetAuthenticated records an authentication outcome. Last write wins;
// a session never has more than one outcome in effect.
func (s *Session) SetAuthenticated(method, principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
	s.authMethod = method
	s.principal = principal
}

// Authenticated reports the current authentication state and method.
func (s *Session) Authenticated() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated, s.authMethod
}

// Principal returns the authenticated principal ID, or "".
func (s *Session) Principal() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// Touch records activity, deferring the inactivity sweep.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

// LastActivity returns the most recent observed activity time.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// ConnectedAt returns the session creation time.
func (s *Session) ConnectedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedAt
}

// Subscribe adds an event type to the subscription set. Idempotent.
func (s *Session) Subscribe(eventType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[eventType] = struct{}{}
}

// Unsubscribe removes an event type. Unsubscribing from a never-subscribed
// event is a no-op, not an error.
func (s *Session) Unsubscribe(eventType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, eventType)
}

// IsSubscribed reports whether the session subscribes to eventType.
func (s *Session) IsSubscribed(eventType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscriptions[eventType]
	return ok
}

// Subscriptions returns a snapshot of the subscription set.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.subscriptions))
	for ev := range s.subscriptions {
		out = append(out, ev)
	}
	return out
}
