// ABOUTME: In-memory fan-out broadcaster delivering request events to subscribed sessions
// ABOUTME: Sessions hold only request ids, never request content; delivery is at-most-once per connected session

package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionBufferSize is the channel buffer for each session (64 events).
const sessionBufferSize = 64

// ErrSessionNotFound is returned when subscribing on an unknown or
// disconnected session.
var ErrSessionNotFound = errors.New("session not found")

// Event types pushed over the real-time channel.
const (
	EventStarted     = "started"
	EventAgentResult = "agent_result"
	EventCompleted   = "completed"
	EventFailed      = "failed"
)

// Event is a single real-time update for a request. Payload must be
// JSON-serializable; it is handed to subscribers as-is.
type Event struct {
	RequestID string `json:"request_id"`
	Type      string `json:"event_type"`
	Payload   any    `json:"payload,omitempty"`
}

// Session is one connected client's subscription context. It references
// requests by id only.
type Session struct {
	ID          string
	ConnectedAt time.Time
	ch          chan *Event
}

// Events returns the session's receive channel. The channel is closed
// when the session disconnects or the broadcaster shuts down.
func (s *Session) Events() <-chan *Event {
	return s.ch
}

// Broadcaster provides in-memory pub/sub of request events. Events for a
// given request are delivered in publish order; there is no buffering or
// replay for disconnected sessions.
type Broadcaster struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	subs     map[string]map[string]*Session // requestID -> sessionID -> session
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		sessions: make(map[string]*Session),
		subs:     make(map[string]map[string]*Session),
		logger:   logger.With("component", "broadcaster"),
	}
}

// Connect registers a new session and returns it.
func (b *Broadcaster) Connect() *Session {
	s := &Session{
		ID:          "sess-" + uuid.New().String(),
		ConnectedAt: time.Now(),
		ch:          make(chan *Event, sessionBufferSize),
	}

	b.mu.Lock()
	b.sessions[s.ID] = s
	b.mu.Unlock()

	b.logger.Debug("session connected", "session_id", s.ID)
	return s
}

// Subscribe registers a session for events on the given request id.
func (b *Broadcaster) Subscribe(sessionID, requestID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if _, ok := b.subs[requestID]; !ok {
		b.subs[requestID] = make(map[string]*Session)
	}
	b.subs[requestID][sessionID] = s

	b.logger.Debug("session subscribed",
		"session_id", sessionID,
		"request_id", requestID)
	return nil
}

// Publish sends an event to every session subscribed to the event's
// request id. Non-blocking: events are dropped for sessions whose
// channels are full. Sends happen under the read lock so a concurrent
// Disconnect cannot close a channel mid-send.
func (b *Broadcaster) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs[event.RequestID] {
		select {
		case s.ch <- event:
			// Sent
		default:
			b.logger.Debug("dropped event for slow session",
				"session_id", s.ID,
				"request_id", event.RequestID,
				"event_type", event.Type)
		}
	}
}

// Disconnect removes a session, drops its subscriptions, and closes its
// channel. Producers keep running; a disconnected session simply stops
// receiving.
func (b *Broadcaster) Disconnect(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[sessionID]
	if !ok {
		return
	}
	delete(b.sessions, sessionID)

	for requestID, subs := range b.subs {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(b.subs, requestID)
		}
	}
	close(s.ch)

	b.logger.Debug("session disconnected", "session_id", sessionID)
}

// Close shuts down the broadcaster and closes all session channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, s := range b.sessions {
		close(s.ch)
		delete(b.sessions, id)
	}
	b.subs = make(map[string]map[string]*Session)

	b.logger.Debug("broadcaster closed")
}
