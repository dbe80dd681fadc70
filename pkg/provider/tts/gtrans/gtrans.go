// Package gtrans provides a TTS provider backed by the public Google
// Translate speech endpoint. It implements the tts.Provider interface.
//
// The endpoint serves one MP3 clip per request and rejects text longer than
// roughly 200 characters, so longer replies are split at word boundaries and
// the resulting clips concatenated. MP3 frames are self-delimiting, which
// makes byte-level concatenation a valid stream.
package gtrans

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/verbalis-ai/verbalis/pkg/provider/tts"
)

const (
	ttsEndpoint = "https://translate.google.com/translate_tts"

	// maxFragmentLen is the longest text the endpoint accepts per request.
	maxFragmentLen = 200

	defaultLanguage = "en"
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithLanguage sets the synthesis language code (e.g., "en", "de").
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithBaseURL overrides the endpoint URL, mainly for tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// Provider implements tts.Provider backed by the Google Translate speech
// endpoint. The endpoint is unauthenticated and supports a single built-in
// voice per language, so Request.Voice is ignored.
type Provider struct {
	language   string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		language:   defaultLanguage,
		baseURL:    ttsEndpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize implements tts.Provider. Long text is synthesized fragment by
// fragment and the MP3 clips concatenated in order.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if req.Text == "" {
		return tts.Audio{}, errors.New("gtrans: text must not be empty")
	}

	var buf []byte
	for _, fragment := range splitText(req.Text, maxFragmentLen) {
		clip, err := p.fetchClip(ctx, fragment)
		if err != nil {
			return tts.Audio{}, err
		}
		buf = append(buf, clip...)
	}
	if len(buf) == 0 {
		return tts.Audio{}, errors.New("gtrans: empty audio in response")
	}

	return tts.Audio{Data: buf, MIMEType: "audio/mpeg"}, nil
}

// fetchClip requests one MP3 clip for a single text fragment.
func (p *Provider) fetchClip(ctx context.Context, text string) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", p.language)
	q.Set("q", text)

	reqURL := p.baseURL + "?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gtrans: build request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gtrans: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gtrans: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gtrans: read body: %w", err)
	}
	return data, nil
}

// splitText breaks text into fragments no longer than maxLen, splitting at
// word boundaries when possible. Words longer than maxLen are hard-split.
func splitText(text string, maxLen int) []string {
	var fragments []string
	var current strings.Builder

	for _, word := range strings.Fields(text) {
		for len(word) > maxLen {
			if current.Len() > 0 {
				fragments = append(fragments, current.String())
				current.Reset()
			}
			fragments = append(fragments, word[:maxLen])
			word = word[maxLen:]
		}
		if current.Len() > 0 && current.Len()+1+len(word) > maxLen {
			fragments = append(fragments, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		fragments = append(fragments, current.String())
	}
	return fragments
}

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)
