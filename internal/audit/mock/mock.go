// Package mock provides a test double for the audit.Store interface.
package mock

import (
	"context"
	"sync"

	"github.com/verbalis-ai/verbalis/internal/audit"
)

// Store is a mock implementation of audit.Store that records every write.
type Store struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from Write.
	Err error

	// Records holds every record passed to Write, in order.
	Records []audit.Record
}

// Write records rec and returns Err.
func (s *Store) Write(ctx context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records = append(s.Records, rec)
	return s.Err
}

// Written returns a copy of the recorded writes. Thread-safe.
func (s *Store) Written() []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Record, len(s.Records))
	copy(out, s.Records)
	return out
}

// Compile-time interface check.
var _ audit.Store = (*Store)(nil)
