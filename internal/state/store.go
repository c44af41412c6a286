package state

import "sync"

// Store guards the cached save view. Three paths mutate it: delta
// application, full refresh, and combat-state replacement of vitals.
// All run through Mutate or Replace so a refresh can never interleave
// with a half-applied delta.
type Store struct {
	mu   sync.RWMutex
	view SaveView
	seq  uint64
}

func NewStore() *Store {
	return &Store{}
}

// View returns a deep copy of the current save view.
func (s *Store) View() SaveView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.Clone()
}

// Seq returns the mutation counter. It increments on every Replace or
// Mutate, letting consumers cheaply detect staleness.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Replace swaps in a full authoritative view.
func (s *Store) Replace(view SaveView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = view.Clone()
	s.seq++
}

// Mutate applies fn to a copy of the view and swaps the result in
// atomically. fn must not retain the value it returns.
func (s *Store) Mutate(fn func(SaveView) SaveView) SaveView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = fn(s.view.Clone())
	s.seq++
	return s.view.Clone()
}
