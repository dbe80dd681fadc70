package openai_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/verbalis-ai/verbalis/pkg/provider/tts"
	"github.com/verbalis-ai/verbalis/pkg/provider/tts/openai"
)

func TestSynthesize_ReturnsAudioBody(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("MP3DATA"))
	}))
	t.Cleanup(srv.Close)

	p := openai.New("test-key", openai.WithBaseURL(srv.URL+"/"))
	audio, err := p.Synthesize(context.Background(), tts.Request{Text: "hello", Voice: "nova"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if string(audio.Data) != "MP3DATA" {
		t.Errorf("audio data = %q, want MP3DATA", audio.Data)
	}
	if audio.MIMEType != "audio/mpeg" {
		t.Errorf("mime type = %q, want audio/mpeg", audio.MIMEType)
	}
	if gotPath != "/audio/speech" {
		t.Errorf("request path = %q, want /audio/speech", gotPath)
	}
}

func TestSynthesize_RejectsEmptyText(t *testing.T) {
	t.Parallel()

	p := openai.New("test-key")
	if _, err := p.Synthesize(context.Background(), tts.Request{}); err == nil {
		t.Error("Synthesize() with empty text: want error, got nil")
	}
}

func TestSynthesize_SurfacesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "invalid voice"}}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	p := openai.New("test-key", openai.WithBaseURL(srv.URL+"/"))
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "hello"}); err == nil {
		t.Error("Synthesize() on API error: want error, got nil")
	}
}
