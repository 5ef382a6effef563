package match

import (
	"fmt"
	"sync"
)

// Registry keeps every live match addressable by room id. Removal is the
// authoritative cancellation signal: a removed match stops ticking.
type Registry struct {
	mu      sync.RWMutex
	matches map[string]*Match
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{matches: make(map[string]*Match)}
}

// Register adds a match under its id, rejecting duplicates.
func (r *Registry) Register(m *Match) error {
	if m == nil {
		return fmt.Errorf("registry: nil match")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	//1.- Duplicate ids would let two loops fight over one room.
	if _, exists := r.matches[m.id]; exists {
		return fmt.Errorf("registry: match %s already registered", m.id)
	}
	r.matches[m.id] = m
	return nil
}

// Lookup fetches a live match by room id.
func (r *Registry) Lookup(id string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	return m, ok
}

// Remove drops the match from the registry and halts its tick loop. It
// reports whether the id was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	m, ok := r.matches[id]
	if ok {
		delete(r.matches, id)
	}
	r.mu.Unlock()
	//1.- Halt outside the lock; the loop cancel is non-blocking either way.
	if ok {
		m.halt()
	}
	return ok
}

// Live returns a point-in-time copy of every registered match.
func (r *Registry) Live() []*Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	live := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		live = append(live, m)
	}
	return live
}

// Len reports how many matches are currently live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}
