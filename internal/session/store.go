// Package session persists walkthrough positions per user and records
// analytics events about them.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-walkthrough/internal/navigator"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// Session is one user's walk through one questionnaire.
type Session struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Channel       string          `json:"channel,omitempty"`
	Questionnaire string          `json:"questionnaire"`
	GraphDigest   string          `json:"graph_digest,omitempty"`
	State         navigator.State `json:"state"`
	StartedAt     time.Time       `json:"started_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"` // first time a terminal node was reached
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
}

// Active reports whether the session has not been ended.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// Store persists sessions and their navigator state.
type Store interface {
	CreateSession(sess Session) (string, error)
	GetSession(id string) (*Session, error)
	GetActiveSession(userID string) (*Session, bool)
	SaveState(id string, st navigator.State) error
	MarkCompleted(id string) error
	EndSession(id string) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

func (s *MemoryStore) CreateSession(sess Session) (string, error) {
	if sess.UserID == "" {
		return "", fmt.Errorf("user_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess.ID = generateID()
	now := time.Now()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}
	sess.UpdatedAt = now
	sess.State = cloneState(sess.State)
	s.sessions[sess.ID] = &sess
	return sess.ID, nil
}

func (s *MemoryStore) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copySession(sess), nil
}

func (s *MemoryStore) GetActiveSession(userID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.Active() {
			continue
		}
		if latest == nil || sess.StartedAt.After(latest.StartedAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, false
	}
	return copySession(latest), true
}

func (s *MemoryStore) SaveState(id string, st navigator.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sess.State = cloneState(st)
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkCompleted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if sess.CompletedAt == nil {
		now := time.Now()
		sess.CompletedAt = &now
	}
	return nil
}

func (s *MemoryStore) EndSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := time.Now()
	sess.EndedAt = &now
	return nil
}

func copySession(sess *Session) *Session {
	c := *sess
	c.State = cloneState(sess.State)
	return &c
}

func cloneState(st navigator.State) navigator.State {
	st.History = slices.Clone(st.History)
	return st
}

// generateID returns a UUID so ids look the same in every backend.
func generateID() string {
	return uuid.NewString()
}
