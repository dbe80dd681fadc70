package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/verbalis-ai/verbalis/pkg/provider/tts"
	ttsmock "github.com/verbalis-ai/verbalis/pkg/provider/tts/mock"
)

func TestTTSFallback_UsesPrimaryWhenHealthy(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{Audio: tts.Audio{Data: []byte("primary"), MIMEType: "audio/mpeg"}}
	backup := &ttsmock.Provider{Audio: tts.Audio{Data: []byte("backup"), MIMEType: "audio/mpeg"}}

	fb := NewTTSFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("gtrans", backup)

	audio, err := fb.Synthesize(context.Background(), tts.Request{Text: "hello", Voice: "alloy"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio.Data) != "primary" {
		t.Errorf("audio = %q, want primary's output", audio.Data)
	}
	if len(backup.Calls()) != 0 {
		t.Error("healthy primary should not reach the fallback")
	}
	if got := primary.Calls()[0].Req.Voice; got != "alloy" {
		t.Errorf("primary voice = %q, want alloy", got)
	}
}

func TestTTSFallback_FailsOverWithDefaultVoice(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{Err: errors.New("quota exceeded")}
	backup := &ttsmock.Provider{Audio: tts.Audio{Data: []byte("backup"), MIMEType: "audio/mpeg"}}

	fb := NewTTSFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("gtrans", backup)

	audio, err := fb.Synthesize(context.Background(), tts.Request{Text: "hello", Voice: "alloy"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio.Data) != "backup" {
		t.Errorf("audio = %q, want fallback output", audio.Data)
	}
	// The fallback backend does not know the primary's voice names.
	if got := backup.Calls()[0].Req.Voice; got != "" {
		t.Errorf("fallback voice = %q, want empty", got)
	}
}

func TestTTSFallback_AllFailed(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{Err: errors.New("down")}
	backup := &ttsmock.Provider{Err: errors.New("also down")}

	fb := NewTTSFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("gtrans", backup)

	_, err := fb.Synthesize(context.Background(), tts.Request{Text: "hello"})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("Synthesize() error = %v, want ErrAllFailed", err)
	}
}
