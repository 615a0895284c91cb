// Package session owns the lifecycle of chat sessions and their message
// logs. It is the single in-memory source of truth for session state;
// all mutation goes through store methods and callers only ever see clones.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/licitahub/atendechat/internal/domain"
	"github.com/licitahub/atendechat/internal/logging"
)

var (
	// ErrNotFound is returned for unknown or already-closed sessions.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidState is returned for transitions the state machine forbids.
	ErrInvalidState = errors.New("invalid session state")
)

// Store holds live sessions keyed by id. Closed sessions are removed from
// the map; a tombstone keeps repeated closes idempotent.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.ChatSession
	closed   map[string]time.Time
	welcome  string
	now      func() time.Time
	log      *logging.Logger
}

// NewStore creates an empty session store. welcomeText is appended as a
// system message to every new session.
func NewStore(welcomeText string, log *logging.Logger) *Store {
	return &Store{
		sessions: make(map[string]*domain.ChatSession),
		closed:   make(map[string]time.Time),
		welcome:  welcomeText,
		now:      time.Now,
		log:      log.Sub("sessions"),
	}
}

// Create opens a new session in the waiting state with a synthesized
// welcome system message.
func (s *Store) Create(req domain.Requester, subject, department string, prio domain.Priority, tags []string) *domain.ChatSession {
	now := s.now()
	sess := &domain.ChatSession{
		ID:           uuid.New().String(),
		Requester:    req,
		Status:       domain.SessionWaiting,
		Subject:      subject,
		Department:   department,
		Tags:         append([]string(nil), tags...),
		Priority:     prio,
		CreatedAt:    now,
		LastActivity: now,
	}
	sess.Messages = append(sess.Messages, domain.ChatMessage{
		ID:         uuid.New().String(),
		SessionID:  sess.ID,
		SenderID:   "system",
		SenderName: "Sistema",
		Role:       domain.RoleSystem,
		Kind:       domain.KindSystem,
		Content:    s.welcome,
		Timestamp:  now,
	})

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.log.Info().
		Str("sessionId", sess.ID).
		Str("requester", req.ID).
		Str("department", department).
		Str("priority", string(prio)).
		Msg("session created")
	return sess.Clone()
}

// Append adds a message to a live session and bumps its last-activity
// timestamp. Missing id and timestamp fields are filled in; timestamps are
// clamped so the log stays non-decreasing.
func (s *Store) Append(sessionID string, msg domain.ChatMessage) (*domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	msg.SessionID = sessionID
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if n := len(sess.Messages); n > 0 {
		if last := sess.Messages[n-1].Timestamp; msg.Timestamp.Before(last) {
			msg.Timestamp = last
		}
	}
	if msg.Kind == "" {
		msg.Kind = domain.KindText
	}

	sess.Messages = append(sess.Messages, msg)
	sess.LastActivity = msg.Timestamp
	return msg.Clone(), nil
}

// AssignAgent transitions a waiting session to active with the given agent.
func (s *Store) AssignAgent(sessionID, agentID, agentName string) (*domain.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != domain.SessionWaiting {
		return nil, ErrInvalidState
	}

	sess.Status = domain.SessionActive
	sess.AgentID = agentID
	sess.AgentName = agentName
	sess.LastActivity = s.now()

	s.log.Info().
		Str("sessionId", sessionID).
		Str("agentId", agentID).
		Msg("agent assigned")
	return sess.Clone(), nil
}

// Close terminates a session from waiting or active. The session is removed
// from the live map and a tombstone is kept so that closing an already-closed
// session is a no-op success. Returns the final snapshot, or nil with
// alreadyClosed=true when the session was closed before.
func (s *Store) Close(sessionID string) (snapshot *domain.ChatSession, alreadyClosed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, gone := s.closed[sessionID]; gone {
		return nil, true, nil
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, ErrNotFound
	}

	now := s.now()
	sess.Status = domain.SessionClosed
	sess.ClosedAt = &now
	sess.LastActivity = now

	delete(s.sessions, sessionID)
	s.closed[sessionID] = now

	s.log.Info().Str("sessionId", sessionID).Msg("session closed")
	return sess.Clone(), false, nil
}

// Get returns a read-only snapshot of a live session.
func (s *Store) Get(sessionID string) (*domain.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// WasClosed reports whether a session id belonged to a now-closed session.
func (s *Store) WasClosed(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.closed[sessionID]
	return ok
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// PruneTombstones drops close-tombstones older than maxAge and returns the
// number removed. Called from the periodic sweep.
func (s *Store) PruneTombstones(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	pruned := 0
	for id, at := range s.closed {
		if at.Before(cutoff) {
			delete(s.closed, id)
			pruned++
		}
	}
	return pruned
}
