package store

import (
	"sync"

	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/telemetry"
)

// MatchStore is a thread-safe registry of all running match runners,
// keyed by match id.
//
// The store's RWMutex protects the map itself (lookups, inserts, deletes).
// It does NOT protect runner contents; each runner serializes its own
// state mutations through its inbox channel.
type MatchStore struct {
	mu      sync.RWMutex
	matches map[string]*sim.Runner
}

func New() *MatchStore {
	return &MatchStore{
		matches: make(map[string]*sim.Runner),
	}
}

func (s *MatchStore) Get(matchID string) (*sim.Runner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.matches[matchID]
	return r, ok
}

// Put registers a runner. Returns false when the id is already taken, so a
// match can never be started twice.
func (s *MatchStore) Put(r *sim.Runner) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matches[r.MatchID()]; exists {
		return false
	}
	s.matches[r.MatchID()] = r
	telemetry.Metrics.ActiveMatches.Set(int64(len(s.matches)))
	return true
}

// Delete removes a match from the store and shuts down its goroutine.
func (s *MatchStore) Delete(matchID string) {
	s.mu.Lock()
	r, ok := s.matches[matchID]
	delete(s.matches, matchID)
	telemetry.Metrics.ActiveMatches.Set(int64(len(s.matches)))
	s.mu.Unlock()

	if ok {
		r.Close()
	}
}

// All returns a snapshot of all runners. Safe for iteration.
func (s *MatchStore) All() []*sim.Runner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*sim.Runner, 0, len(s.matches))
	for _, r := range s.matches {
		out = append(out, r)
	}
	return out
}

func (s *MatchStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}

// CloseAll shuts down every runner, for process shutdown.
func (s *MatchStore) CloseAll() {
	for _, r := range s.All() {
		s.Delete(r.MatchID())
	}
}
