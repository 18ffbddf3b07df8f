// Package assign provides the agent-assignment collaborator used by
// the assign_agent flow action and by conversation handoff. The
// balancing policy itself is external; this package defines the
// contract and a round-robin implementation whose rotation cursor
// lives in an explicit store rather than process memory, so multiple
// service instances route consistently.
package assign

import (
	"context"
	"errors"
	"sync"
)

// Strategy selects how an agent is picked from the candidate set.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round_robin"
	StrategyLeastBusy  Strategy = "least_busy"
)

// Filters narrows the candidate set before selection.
type Filters struct {
	Department string
	OnlineOnly bool
}

// ErrNoCandidates is returned when the candidate set is empty after
// filtering.
var ErrNoCandidates = errors.New("no assignable agents")

// Picker chooses an agent for a conversation.
type Picker interface {
	PickAgent(ctx context.Context, candidates []string, strategy Strategy, filters Filters) (string, error)
}

// CursorStore persists the round-robin rotation cursor per key.
type CursorStore interface {
	Next(ctx context.Context, key string) (int, error)
}

// MemoryCursorStore is an in-memory CursorStore.
type MemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[string]int
}

// NewMemoryCursorStore creates an empty cursor store.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]int)}
}

// Next implements CursorStore.
func (s *MemoryCursorStore) Next(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.cursors[key]
	s.cursors[key] = n + 1
	return n, nil
}

// RoundRobinPicker rotates through candidates using a persisted cursor.
type RoundRobinPicker struct {
	cursors CursorStore
	key     string
}

// NewRoundRobinPicker creates a picker with the given cursor store.
// The key scopes the rotation, typically a tenant id.
func NewRoundRobinPicker(cursors CursorStore, key string) *RoundRobinPicker {
	return &RoundRobinPicker{cursors: cursors, key: key}
}

// PickAgent implements Picker.
func (p *RoundRobinPicker) PickAgent(ctx context.Context, candidates []string, strategy Strategy, filters Filters) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	n, err := p.cursors.Next(ctx, p.key)
	if err != nil {
		return "", err
	}
	return candidates[n%len(candidates)], nil
}
