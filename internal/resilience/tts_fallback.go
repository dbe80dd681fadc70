package resilience

import (
	"context"

	"github.com/verbalis-ai/verbalis/pkg/provider/tts"
)

// TTSFallback is a [tts.Provider] that fails over between synthesis backends,
// each guarded by its own circuit breaker.
//
// Voice identifiers are provider-specific, so a request routed to a fallback
// backend is synthesized with that backend's default voice rather than the
// originally requested one.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize runs the request against the first healthy provider. The
// requested voice only applies to the primary; fallbacks receive an empty
// voice and use their default.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	first := true
	return ExecuteWithResult(f.group, func(p tts.Provider) (tts.Audio, error) {
		r := req
		if !first {
			r.Voice = ""
		}
		first = false
		return p.Synthesize(ctx, r)
	})
}
