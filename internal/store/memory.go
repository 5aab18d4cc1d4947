package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bank-reconciliation-engine/internal/models"
)

// MemoryStore keeps matches in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]*models.Match
	saves    int

	// FailNext makes the next SaveMatches calls fail without storing anything
	FailNext int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]*models.Match)}
}

// SaveMatches stores copies of all matches or, on failure, none of them
func (s *MemoryStore) SaveMatches(ctx context.Context, sessionID string, matches []*models.Match) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++
	if s.FailNext > 0 {
		s.FailNext--
		return fmt.Errorf("memory store: simulated write failure for session %s", sessionID)
	}

	for _, m := range matches {
		copied := *m
		s.sessions[sessionID] = append(s.sessions[sessionID], &copied)
	}
	return nil
}

// ListMatches returns the matches of a session ordered by statement id
func (s *MemoryStore) ListMatches(ctx context.Context, sessionID string) ([]*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.sessions[sessionID]
	matches := make([]*models.Match, 0, len(stored))
	for _, m := range stored {
		copied := *m
		matches = append(matches, &copied)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Statement.ID < matches[j].Statement.ID
	})
	return matches, nil
}

// Saves returns the number of SaveMatches calls, including failed ones
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
