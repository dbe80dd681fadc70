// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., the OpenAI speech
// API or the Google Translate TTS endpoint) and presents a uniform batch
// interface. The pipeline synthesizes one complete assistant reply at a time,
// so providers receive the full text and return one encoded audio clip.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Request carries the text to synthesize and the voice to use.
type Request struct {
	// Text is the full text to synthesize. Must not be empty.
	Text string

	// Voice is the provider-specific voice identifier. Empty selects the
	// provider's default voice.
	Voice string
}

// Audio is the synthesized clip returned by Synthesize.
type Audio struct {
	// Data is the encoded audio bytes.
	Data []byte

	// MIMEType describes the encoding of Data (e.g., "audio/mpeg").
	MIMEType string
}

// Provider is the abstraction over any TTS backend.
//
// Multiple synthesis requests may run in parallel (e.g., several sessions
// completing at once).
type Provider interface {
	// Synthesize converts req.Text into a single encoded audio clip.
	//
	// Providers should return an error if the requested voice is not
	// available, if req.Text is empty, or if ctx is cancelled before
	// synthesis completes.
	Synthesize(ctx context.Context, req Request) (Audio, error)
}
