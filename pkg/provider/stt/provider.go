// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a remote transcription service (e.g., the OpenAI
// Whisper API) behind a uniform batch interface: the caller hands over one
// complete, bounded audio clip and receives the transcript for it. Verbalis
// aggregates streamed chunks into bounded clips before transcription, so no
// streaming session abstraction is needed here.
//
// Implementations must be safe for concurrent use; multiple sessions may
// transcribe in parallel.
package stt

import "context"

// Request carries one audio clip to transcribe.
type Request struct {
	// Audio is the complete audio payload. The container must match MIMEType.
	Audio []byte

	// MIMEType declares the container of Audio (e.g., "audio/wav").
	MIMEType string

	// Language is the BCP-47 language tag the recognition is pinned to
	// (e.g., "en"). Providers must not fall back to auto-detection when
	// the field is set.
	Language string
}

// Transcript is the result of transcribing one clip.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe submits the clip and blocks until the provider returns the
	// transcript or ctx is cancelled.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
