// Package sessions implements session persistence and the History Manager:
// token-budget-aware compaction of a session's message log before it is
// sent to the model.
package sessions

import (
	"context"
	"errors"
	"sync"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// ErrSessionNotFound names an unknown session id. The stores in this
// package do not return it: an unknown id yields empty history and a zero
// message count.
var ErrSessionNotFound = errors.New("session not found")

// Store is the interface for session persistence. Implementations must
// serialize concurrent writes to the same session id.
type Store interface {
	AppendMessage(ctx context.Context, sessionID string, msg models.Message) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
	MessageCount(ctx context.Context, sessionID string) (int, error)
}

// MemoryStore is an in-memory reference Store, safe for concurrent use.
// Writes to distinct sessions proceed independently; writes to the same
// session are serialized by a per-session lock.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	mu       sync.Mutex
	messages []models.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*sessionState)}
}

func (s *MemoryStore) lockSession(id string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		st = &sessionState{}
		s.sessions[id] = st
	}
	return st
}

// AppendMessage creates the session on first write and appends msg.
func (s *MemoryStore) AppendMessage(ctx context.Context, sessionID string, msg models.Message) error {
	st := s.lockSession(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.messages = append(st.messages, msg)
	return nil
}

// GetHistory returns up to limit of the most recent messages in order.
// limit <= 0 means "all".
func (s *MemoryStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if limit <= 0 || limit >= len(st.messages) {
		out := make([]models.Message, len(st.messages))
		copy(out, st.messages)
		return out, nil
	}
	start := len(st.messages) - limit
	out := make([]models.Message, limit)
	copy(out, st.messages[start:])
	return out, nil
}

// MessageCount returns the number of messages appended to a session, or 0
// if the session does not exist.
func (s *MemoryStore) MessageCount(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return 0, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.messages), nil
}
