// Package session tracks per-caller conversation state: the capped message
// history fed to the LLM and the chunk aggregator for streamed audio.
package session

import (
	"sync"
	"time"

	"github.com/verbalis-ai/verbalis/pkg/provider/llm"
)

// Session holds the conversation state for one caller. The history is a FIFO
// capped at the configured limit; appending beyond the cap evicts the oldest
// entries so the LLM always sees the most recent exchange.
//
// All methods are safe for concurrent use.
type Session struct {
	mu           sync.Mutex
	id           string
	historyLimit int
	history      []llm.Message
	agg          *Aggregator
	lastActive   time.Time
}

// NewSession creates a session with an empty history capped at historyLimit
// messages.
func NewSession(id string, historyLimit int) *Session {
	return &Session{
		id:           id,
		historyLimit: historyLimit,
		history:      make([]llm.Message, 0, historyLimit),
		lastActive:   time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// AppendExchange records one user turn and the assistant's reply, evicting
// the oldest messages when the cap is exceeded.
func (s *Session) AppendExchange(userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history,
		llm.Message{Role: "user", Content: userText},
		llm.Message{Role: "assistant", Content: assistantText},
	)
	if n := len(s.history); n > s.historyLimit {
		// Copy to a fresh slice so evicted entries can be garbage collected.
		fresh := make([]llm.Message, s.historyLimit)
		copy(fresh, s.history[n-s.historyLimit:])
		s.history = fresh
	}
	s.lastActive = time.Now()
}

// History returns a copy of the current conversation history in
// chronological order.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Aggregator returns the session's chunk aggregator, creating it with the
// given settings on first use. Later calls return the existing aggregator
// regardless of the arguments, so a reconnect keeps resuming the same
// buffer until it is flushed or the session is reset.
func (s *Session) Aggregator(threshold, minBytes int) *Aggregator {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.agg == nil {
		s.agg = NewAggregator(threshold, minBytes)
	}
	return s.agg
}

// Clear discards the conversation history and any buffered audio chunks but
// keeps the session alive.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = s.history[:0]
	if s.agg != nil {
		s.agg.Reset()
	}
	s.lastActive = time.Now()
}

// LastActive returns the time of the most recent history mutation.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
