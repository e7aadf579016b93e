// Package credential holds the bearer credential harvested from the page and
// the strategies that find it.
package credential

import (
	"strings"
	"sync"
)

// Store holds the active credential and every candidate already seen.
// A candidate is processed at most once; a new distinct candidate replaces
// the active one (last write wins). Nothing is persisted.
type Store struct {
	mu     sync.Mutex
	active string
	seen   map[string]struct{}
}

func NewStore() *Store {
	return &Store{seen: make(map[string]struct{})}
}

// Current returns the active credential, if any.
func (s *Store) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != ""
}

// TryCapture records candidate and makes it active. It returns true iff the
// candidate was new.
func (s *Store) TryCapture(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[candidate]; ok {
		return false
	}
	s.seen[candidate] = struct{}{}
	s.active = candidate
	return true
}

// Seen reports whether candidate was already processed.
func (s *Store) Seen(candidate string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[strings.TrimSpace(candidate)]
	return ok
}

// Preview returns the first n characters of the active credential for logs.
func Preview(token string, n int) string {
	if len(token) <= n {
		return token
	}
	return token[:n] + "..."
}
