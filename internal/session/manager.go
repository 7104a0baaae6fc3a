// ABOUTME: Manages connected realtime sessions: identity, liveness, forced disconnects
// ABOUTME: Runs the periodic inactivity sweep that removes idle sessions

package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults for the liveness sweep.
const (
	DefaultSweepInterval    = 30 * time.Second
	DefaultInactivityWindow = 10 * time.Minute
)

// Manager coordinates all connected sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	sweepInterval    time.Duration
	inactivityWindow time.Duration
	logger           *slog.Logger
}

// ManagerConfig contains construction options for the Manager.
type ManagerConfig struct {
	SweepInterval    time.Duration
	InactivityWindow time.Duration
	Logger           *slog.Logger
}

// NewManager creates a Manager. Pass nil logger for default.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.InactivityWindow == 0 {
		cfg.InactivityWindow = DefaultInactivityWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:         make(map[string]*Session),
		sweepInterval:    cfg.SweepInterval,
		inactivityWindow: cfg.InactivityWindow,
		logger:           logger.With("component", "session-manager"),
	}
}

// Add creates a session around the transport and registers it.
func (m *Manager) Add(sender Sender) *Session {
	now := time.Now()
	s := newSession(NewSessionID(now), sender, now)

	m.mu.Lock()
	m.sessions[s.ID] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("session connected", "session_id", s.ID, "total_sessions", total)
	return s
}

// Remove unregisters and closes a session. Safe for unknown ids.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	total := len(m.sessions)
	m.mu.Unlock()

	if ok {
		s.Close()
		m.logger.Info("session removed", "session_id", id, "total_sessions", total)
	}
}

// Get retrieves a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns a snapshot of all registered sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartSweeper runs the periodic liveness sweep until ctx is canceled.
func (m *Manager) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.SweepOnce(now)
			}
		}
	}()
}

// SweepOnce force-closes and removes every session idle longer than the
// inactivity window, plus any session that already reached its terminal
// state. Returns the removed session ids.
func (m *Manager) SweepOnce(now time.Time) []string {
	var stale []*Session

	m.mu.RLock()
	for _, s := range m.sessions {
		if s.Closed() || now.Sub(s.LastActivity()) > m.inactivityWindow {
			stale = append(stale, s)
		}
	}
	m.mu.RUnlock()

	removed := make([]string, 0, len(stale))
	for _, s := range stale {
		m.Remove(s.ID)
		removed = append(removed, s.ID)
	}

	if len(removed) > 0 {
		m.logger.Info("liveness sweep removed sessions", "count", len(removed))
	}
	return removed
}

// CloseAll force-closes every session, for shutdown.
func (m *Manager) CloseAll() {
	for _, s := range m.List() {
		m.Remove(s.ID)
	}
}

// NewSessionID generates a session id from a timestamp plus a random suffix.
// Unique for the process lifetime.
func NewSessionID(now time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("client-%d-%s", now.UnixMilli(), suffix)
}
