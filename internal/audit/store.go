// Package audit records completed conversation turns for offline review.
//
// Auditing is best-effort: a failed write is logged by the caller and never
// fails the request that produced it.
package audit

import (
	"context"
	"time"
)

// Record is one completed exchange written to the audit trail.
type Record struct {
	// SessionID identifies the conversation the exchange belongs to.
	SessionID string

	// RequestID is the per-request correlation identifier from the logs.
	RequestID string

	// Category is the persona category the reply was generated under.
	Category string

	// VoiceModel is the voice the reply was synthesized with.
	VoiceModel string

	// UserText is the transcription of the caller's audio.
	UserText string

	// AssistantText is the generated reply.
	AssistantText string

	// AudioBytes is the size of the synthesized audio payload.
	AudioBytes int

	// Duration is the wall-clock time of the full pipeline run.
	Duration time.Duration

	// CreatedAt is when the exchange completed.
	CreatedAt time.Time
}

// Store persists audit records.
type Store interface {
	// Write appends one record to the trail.
	Write(ctx context.Context, rec Record) error
}
