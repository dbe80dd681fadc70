package gtrans

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/verbalis-ai/verbalis/pkg/provider/tts"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		maxLen int
		want   []string
	}{
		{
			name:   "short text stays whole",
			text:   "hello world",
			maxLen: 200,
			want:   []string{"hello world"},
		},
		{
			name:   "splits at word boundary",
			text:   "alpha beta gamma",
			maxLen: 11,
			want:   []string{"alpha beta", "gamma"},
		},
		{
			name:   "hard-splits oversized word",
			text:   "abcdefghij",
			maxLen: 4,
			want:   []string{"abcd", "efgh", "ij"},
		},
		{
			name:   "collapses whitespace",
			text:   "  one   two  ",
			maxLen: 200,
			want:   []string{"one two"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitText(tt.text, tt.maxLen)
			if len(got) != len(tt.want) {
				t.Fatalf("splitText() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("fragment %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
			for _, f := range got {
				if len(f) > tt.maxLen {
					t.Errorf("fragment %q exceeds maxLen %d", f, tt.maxLen)
				}
			}
		})
	}
}

func TestSynthesize_ConcatenatesFragments(t *testing.T) {
	t.Parallel()

	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		requests = append(requests, q)
		w.Write([]byte("[" + q + "]"))
	}))
	defer srv.Close()

	p := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	audio, err := p.Synthesize(context.Background(), tts.Request{Text: "alpha beta gamma"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if audio.MIMEType != "audio/mpeg" {
		t.Errorf("MIMEType = %q, want audio/mpeg", audio.MIMEType)
	}
	if got := string(audio.Data); got != "[alpha beta gamma]" {
		t.Errorf("Data = %q, want single fragment clip", got)
	}
	if len(requests) != 1 {
		t.Errorf("request count = %d, want 1", len(requests))
	}
}

func TestSynthesize_RejectsEmptyText(t *testing.T) {
	t.Parallel()

	p := New()
	if _, err := p.Synthesize(context.Background(), tts.Request{}); err == nil {
		t.Fatal("Synthesize() with empty text: want error, got nil")
	}
}

func TestSynthesize_SurfacesServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	_, err := p.Synthesize(context.Background(), tts.Request{Text: "hello"})
	if err == nil {
		t.Fatal("Synthesize() on 429: want error, got nil")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error %q does not mention status code", err)
	}
}
