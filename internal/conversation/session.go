package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flossyai/dental-ai-platform/internal/observability/metrics"
)

// Session binds one communication channel (a voice connection or a text user
// identity) to one state machine. The mutex serializes turns: at most one
// utterance per session is in flight, so slot merges stay deterministic.
type Session struct {
	ID      string
	Channel string
	UserID  *uuid.UUID

	mu      sync.Mutex
	machine *Machine

	// lastSeen is guarded by the owning store's mutex.
	lastSeen time.Time
}

// SessionStore maps channel identifiers to live sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	metrics  *metrics.ConversationMetrics
	now      func() time.Time
}

// NewSessionStore creates an empty store.
func NewSessionStore(m *metrics.ConversationMetrics) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Attach returns the live session for the identifier, creating it on first
// use. Voice connections attach on connect; text users attach per message.
func (s *SessionStore) Attach(id, channel string, userID *uuid.UUID) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.lastSeen = s.now()
		return sess
	}
	sess := &Session{
		ID:       id,
		Channel:  channel,
		UserID:   userID,
		machine:  NewMachine(),
		lastSeen: s.now(),
	}
	s.sessions[id] = sess
	s.metrics.SessionOpened(channel)
	return sess
}

// Touch refreshes the session's idle clock without creating it.
func (s *SessionStore) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.lastSeen = s.now()
	}
}

// Detach removes the session and discards its slot set.
func (s *SessionStore) Detach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.sessions, id)
	s.metrics.SessionClosed(sess.Channel)
}

// Sweep evicts text sessions idle for longer than maxIdle and returns how
// many were removed. Voice sessions are skipped: their lifetime is bound to
// the socket and the handler detaches them on disconnect.
func (s *SessionStore) Sweep(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	for id, sess := range s.sessions {
		if sess.Channel == "voice" || sess.lastSeen.After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		s.metrics.SessionClosed(sess.Channel)
		removed++
	}
	return removed
}

// SweepLoop runs Sweep on a ticker until the context is cancelled.
func (s *SessionStore) SweepLoop(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(maxIdle)
		}
	}
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
