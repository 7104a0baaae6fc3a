// ABOUTME: Best-effort fan-out of named events to subscribed sessions
// ABOUTME: Non-sendable sessions are removed from the registry on delivery failure

package events

import (
	"log/slog"

	"github.com/procurehub/ai-gateway/internal/session"
)

// Event is the server->client envelope for broadcast deliveries.
type Event struct {
	Type      string `json:"type"` // always "event"
	EventType string `json:"eventType"`
	Data      any    `json:"data"`
}

// Broadcaster fans out events to every session subscribed to the event type.
// Delivery is best effort: no confirmation, no cross-session ordering, no
// retry of a failed send.
type Broadcaster struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// NewBroadcaster creates a Broadcaster over the session registry.
// Pass nil logger for default.
func NewBroadcaster(sessions *session.Manager, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		sessions: sessions,
		logger:   logger.With("component", "broadcaster"),
	}
}

// Broadcast delivers the event to every subscribed session and returns the
// delivered count. A session whose transport cannot accept the send is
// skipped and removed from the registry immediately.
func (b *Broadcaster) Broadcast(eventType string, data any) int {
	evt := Event{Type: "event", EventType: eventType, Data: data}

	delivered := 0
	for _, s := range b.sessions.List() {
		if !s.IsSubscribed(eventType) {
			continue
		}
		if err := s.Send(evt); err != nil {
			b.logger.Debug("removing non-sendable session",
				"session_id", s.ID,
				"event_type", eventType,
				"error", err,
			)
			b.sessions.Remove(s.ID)
			continue
		}
		delivered++
	}

	b.logger.Debug("event broadcast", "event_type", eventType, "delivered", delivered)
	return delivered
}
