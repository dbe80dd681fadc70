// Package openai implements tts.Provider using the OpenAI speech API.
//
// The provider sends the full reply text to the /v1/audio/speech endpoint and
// returns the MP3 clip from the response body. Voices map to the named OpenAI
// voices (alloy, nova, echo, ...); an empty voice selects alloy.
package openai

import (
	"context"
	"fmt"
	"io"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/verbalis-ai/verbalis/pkg/provider/tts"
)

// defaultVoice is used when a request does not name a voice.
const defaultVoice = "alloy"

// Provider implements tts.Provider backed by the OpenAI speech API.
type Provider struct {
	client  oai.Client
	model   oai.SpeechModel
	timeout time.Duration
}

// config holds optional configuration for the provider.
type config struct {
	model   oai.SpeechModel
	baseURL string
	timeout time.Duration
}

// Option configures a Provider.
type Option func(*config)

// WithModel overrides the speech model. Defaults to tts-1.
func WithModel(model oai.SpeechModel) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets the per-request timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New creates a Provider using the given API key. When apiKey is empty the
// client falls back to the OPENAI_API_KEY environment variable.
func New(apiKey string, opts ...Option) *Provider {
	cfg := &config{
		model:   oai.SpeechModelTTS1,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{
		client:  oai.NewClient(reqOpts...),
		model:   cfg.model,
		timeout: cfg.timeout,
	}
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if req.Text == "" {
		return tts.Audio{}, fmt.Errorf("openai tts: text must not be empty")
	}

	voice := req.Voice
	if voice == "" {
		voice = defaultVoice
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          p.model,
		Input:          req.Text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return tts.Audio{}, fmt.Errorf("openai tts: speech request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("openai tts: read speech body: %w", err)
	}
	if len(data) == 0 {
		return tts.Audio{}, fmt.Errorf("openai tts: empty audio in response")
	}

	return tts.Audio{Data: data, MIMEType: "audio/mpeg"}, nil
}

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)
