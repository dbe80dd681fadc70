// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to verify synthesis requests and to feed
// controlled audio without a live TTS backend.
package mock

import (
	"context"
	"sync"

	"github.com/verbalis-ai/verbalis/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the Request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
// Zero values for response fields cause Synthesize to return a zero Audio and
// nil error. Set Err to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Audio is returned by Synthesize.
	Audio tts.Audio

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// FailFirst makes the first N calls to Synthesize return Err even when
	// later calls would succeed. Used to exercise retry and fallback behavior.
	FailFirst int

	// --- Call records (read after test) ---

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns Audio, Err.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	if p.FailFirst > 0 && len(p.SynthesizeCalls) <= p.FailFirst {
		return tts.Audio{}, p.Err
	}
	if p.FailFirst == 0 && p.Err != nil {
		return tts.Audio{}, p.Err
	}
	return p.Audio, nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
