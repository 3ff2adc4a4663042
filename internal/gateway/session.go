// ABOUTME: SSE session tracking for the gateway
// ABOUTME: Sessions bind a stream, an identity, and a default project scope

package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sendBuffer is the per-session queue depth for outbound frames. A session
// whose client stops reading has its deliveries dropped rather than blocking
// the message handler.
const sendBuffer = 16

// Session is one active SSE stream. Responses to messages POSTed out of band
// are delivered over its send channel; the scope recorded at connect time is
// the default for messages that carry no project header of their own.
type Session struct {
	ID        string
	ClientID  string
	Scope     Scope
	CreatedAt time.Time

	send chan json.RawMessage
	done chan struct{}
	once sync.Once
}

func newSession(clientID string, scope Scope) *Session {
	return &Session{
		ID:        uuid.New().String(),
		ClientID:  clientID,
		Scope:     scope,
		CreatedAt: time.Now(),
		send:      make(chan json.RawMessage, sendBuffer),
		done:      make(chan struct{}),
	}
}

// Deliver queues a frame for the session's stream. Returns false when the
// session is closed or its buffer is full.
func (s *Session) Deliver(msg json.RawMessage) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// Close terminates the session's stream. Safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

// SessionRegistry manages active SSE sessions (in-memory).
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Create registers a new session for the given identity and scope.
func (r *SessionRegistry) Create(clientID string, scope Scope) *Session {
	sess := newSession(clientID, scope)
	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
	return sess
}

// Get returns the session with the given id.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	return sess, ok
}

// Remove closes and deregisters a session.
func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// CloseAll terminates every session. Used when the active workspace changes;
// sessions are bound to the workspace they were opened against.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
}

// Len returns the number of active sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
