package session

import (
	"sync"
	"time"
)

// Registry maps session IDs to live sessions. Sessions are created lazily on
// first use and evicted either explicitly or by idle age.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	historyLimit int
}

// NewRegistry creates an empty registry whose sessions cap their history at
// historyLimit messages.
func NewRegistry(historyLimit int) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		historyLimit: historyLimit,
	}
}

// GetOrCreate returns the session for id, creating it when absent.
func (r *Registry) GetOrCreate(id string) *Session {
	s, _ := r.Obtain(id)
	return s
}

// Obtain returns the session for id and reports whether this call created it.
// Callers that maintain a live-session gauge use the created flag.
func (r *Registry) Obtain(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s := NewSession(id, r.historyLimit)
	r.sessions[id] = s
	return s, true
}

// Get returns the session for id, or nil when it does not exist.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Reset clears the history and any buffered audio chunks of the session for
// id. It reports whether a session existed. Resetting an unknown id is not an
// error; the next request will start fresh either way.
func (r *Registry) Reset(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()

	if ok {
		s.Clear()
	}
	return ok
}

// Evict removes the session for id entirely and reports whether it existed.
func (r *Registry) Evict(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// EvictIdle removes every session whose last activity is older than maxIdle
// and returns the number removed.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
