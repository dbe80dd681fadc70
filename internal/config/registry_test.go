package config_test

import (
	"errors"
	"testing"

	"github.com/verbalis-ai/verbalis/internal/config"
	"github.com/verbalis-ai/verbalis/pkg/provider/tts"
	ttsmock "github.com/verbalis-ai/verbalis/pkg/provider/tts/mock"
)

func TestRegistry_CreateTTS(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterTTS("mock", func(entry config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	p, err := reg.CreateTTS(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateTTS() error = %v", err)
	}
	if p == nil {
		t.Fatal("CreateTTS() returned nil provider")
	}
}

func TestRegistry_UnregisteredName(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM() error = %v, want ErrProviderNotRegistered", err)
	}
}
