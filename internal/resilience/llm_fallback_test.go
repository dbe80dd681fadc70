package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/verbalis-ai/verbalis/pkg/provider/llm"
	llmmock "github.com/verbalis-ai/verbalis/pkg/provider/llm/mock"
)

func TestLLMFallback_FailsOver(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("llm down")}
	backup := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from backup"},
	}

	fb := NewLLMFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("backup", backup)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "from backup" {
		t.Errorf("content = %q, want backup output", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 {
		t.Errorf("primary calls = %d, want 1", len(primary.CompleteCalls))
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("llm down")}

	fb := NewLLMFallback(primary, "openai", FallbackConfig{})

	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_CapabilitiesComeFromPrimary(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 128000},
	}
	backup := &llmmock.Provider{
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 4096},
	}

	fb := NewLLMFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("backup", backup)

	if got := fb.Capabilities().ContextWindow; got != 128000 {
		t.Errorf("ContextWindow = %d, want the primary's 128000", got)
	}
}
