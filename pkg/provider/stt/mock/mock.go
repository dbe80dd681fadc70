// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed controlled transcripts to consumers and to verify the
// requests that reach the STT backend, including how many attempts a retrying
// caller made.
//
// Example:
//
//	p := &mock.Provider{Transcript: stt.Transcript{Text: "hello"}}
//	tr, _ := p.Transcribe(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/verbalis-ai/verbalis/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe. Audio is a copy.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err to inject failures.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Transcript is returned by Transcribe on success.
	Transcript stt.Transcript

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// FailFirst makes the first N calls return Err even when a later call
	// should succeed. Used to exercise retry policies.
	FailFirst int

	// --- Call records (read after test) ---

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the configured transcript or error.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	audioCopy := make([]byte, len(req.Audio))
	copy(audioCopy, req.Audio)
	req.Audio = audioCopy
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: req})

	if p.FailFirst >= len(p.TranscribeCalls) {
		return stt.Transcript{}, p.Err
	}
	if p.FailFirst == 0 && p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	return p.Transcript, nil
}

// Calls returns the number of recorded Transcribe invocations. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)
