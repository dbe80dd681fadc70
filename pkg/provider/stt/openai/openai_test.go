package openai_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/verbalis-ai/verbalis/pkg/provider/stt"
	"github.com/verbalis-ai/verbalis/pkg/provider/stt/openai"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := openai.New(""); err == nil {
		t.Error("New(\"\") should fail")
	}
}

func TestTranscribe_ReturnsText(t *testing.T) {
	t.Parallel()

	var gotLanguage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotLanguage = r.FormValue("language")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "tell me about yourself"}`))
	}))
	t.Cleanup(srv.Close)

	p, err := openai.New("test-key", openai.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := p.Transcribe(context.Background(), stt.Request{
		Audio:    []byte("fake wav"),
		MIMEType: "audio/wav",
		Language: "en",
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if tr.Text != "tell me about yourself" {
		t.Errorf("text = %q", tr.Text)
	}
	if gotLanguage != "en" {
		t.Errorf("language field = %q, want en", gotLanguage)
	}
}

func TestTranscribe_RejectsEmptyAudio(t *testing.T) {
	t.Parallel()

	p, err := openai.New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Request{}); err == nil {
		t.Error("Transcribe() with empty audio: want error, got nil")
	}
}

func TestTranscribe_SurfacesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "invalid file"}}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	p, err := openai.New("test-key", openai.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("x"), MIMEType: "audio/wav"}); err == nil {
		t.Error("Transcribe() on 400: want error, got nil")
	}
}
