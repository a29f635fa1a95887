// Package conversation keeps per-conversation chat history in memory.
package conversation

import (
	"sync"

	"github.com/ragchat/ragchat/internal/domain"
)

type history struct {
	mu    sync.Mutex
	turns []domain.Turn
}

// Store holds the turn history of every conversation. Appends within a single
// call are atomic per conversation, so a user/assistant pair recorded together
// is never interleaved with turns from concurrent requests.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*history
}

func NewStore() *Store {
	return &Store{conversations: make(map[string]*history)}
}

func (s *Store) get(conversationID string) *history {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.conversations[conversationID]
	if !ok {
		h = &history{}
		s.conversations[conversationID] = h
	}
	return h
}

// Append records turns at the end of the conversation, in the given order,
// as a single atomic operation.
func (s *Store) Append(conversationID string, turns ...domain.Turn) {
	if len(turns) == 0 {
		return
	}

	h := s.get(conversationID)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turns...)
}

// RecentTurns returns up to maxTurns most recent turns, oldest first.
// The returned slice is a copy.
func (s *Store) RecentTurns(conversationID string, maxTurns int) []domain.Turn {
	if maxTurns <= 0 {
		return nil
	}

	h := s.get(conversationID)
	h.mu.Lock()
	defer h.mu.Unlock()

	start := len(h.turns) - maxTurns
	if start < 0 {
		start = 0
	}
	out := make([]domain.Turn, len(h.turns)-start)
	copy(out, h.turns[start:])
	return out
}
