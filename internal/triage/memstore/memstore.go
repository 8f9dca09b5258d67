// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

// Store holds submissions in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	results map[string]*triage.Result // submission ID -> result
	latest  map[string]string         // report fingerprint -> most recent submission ID
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		results: make(map[string]*triage.Result),
		latest:  make(map[string]string),
	}
}

// Get retrieves a submission by its ID. Returns a deep copy.
func (s *Store) Get(_ context.Context, id string) (*triage.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

// GetByFingerprint retrieves the most recent submission for a report
// fingerprint. Returns a deep copy.
func (s *Store) GetByFingerprint(_ context.Context, fp string) (*triage.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.latest[fp]
	if !ok {
		return nil, false, nil
	}
	return s.results[id].Clone(), true, nil
}

// Put stores a deep copy of the submission. The fingerprint index tracks the
// newest submission by creation time.
func (s *Store) Put(_ context.Context, r *triage.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.ID] = r.Clone()

	if prevID, ok := s.latest[r.Fingerprint]; ok && prevID != r.ID {
		if prev := s.results[prevID]; prev != nil && prev.CreatedAt.After(r.CreatedAt) {
			return nil
		}
	}
	s.latest[r.Fingerprint] = r.ID
	return nil
}

// CountByDecision counts stored submissions per terminal decision.
func (s *Store) CountByDecision(_ context.Context) (map[triage.Decision]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[triage.Decision]int)
	for _, r := range s.results {
		if r.Decision != "" {
			out[r.Decision]++
		}
	}
	return out, nil
}

// Len returns the number of stored submissions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
