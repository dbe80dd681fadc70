// Package pipeline runs the three-stage voice turn: transcribe the caller's
// audio, generate a persona-flavored reply, and synthesize the reply as
// speech. Stages are sequential because each consumes the previous stage's
// output; independent sessions run their pipelines in parallel.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/verbalis-ai/verbalis/internal/audit"
	"github.com/verbalis-ai/verbalis/internal/config"
	"github.com/verbalis-ai/verbalis/internal/media"
	"github.com/verbalis-ai/verbalis/internal/observe"
	"github.com/verbalis-ai/verbalis/internal/session"
	"github.com/verbalis-ai/verbalis/pkg/provider/llm"
	"github.com/verbalis-ai/verbalis/pkg/provider/stt"
	"github.com/verbalis-ai/verbalis/pkg/provider/tts"
)

// Generation parameters sent with every completion request.
const (
	replyTemperature = 0.7
	replyMaxTokens   = 150
)

// audioDataURIPrefix wraps synthesized audio for direct client playback.
const audioDataURIPrefix = "data:audio/mp3;base64,"

// SpeechRouter selects the TTS backend and backend-specific voice name for a
// configured voice model.
type SpeechRouter interface {
	Route(v config.VoiceModel) (tts.Provider, string, error)
}

// VoiceRouter is the standard SpeechRouter: the default voice model maps to
// the fallback-wrapped default backend, the openai-* models map to the OpenAI
// backend with the corresponding named voice.
type VoiceRouter struct {
	def    tts.Provider
	openai tts.Provider
}

// NewVoiceRouter creates a VoiceRouter. openai may be nil when no OpenAI TTS
// backend is configured; openai-* voice models are then rejected.
func NewVoiceRouter(def, openai tts.Provider) *VoiceRouter {
	return &VoiceRouter{def: def, openai: openai}
}

// Route implements SpeechRouter.
func (r *VoiceRouter) Route(v config.VoiceModel) (tts.Provider, string, error) {
	if v == "" {
		v = config.VoiceDefault
	}
	if !v.IsValid() {
		return nil, "", fmt.Errorf("unknown voice model %q", v)
	}
	if voice, ok := v.OpenAIVoice(); ok {
		if r.openai == nil {
			return nil, "", fmt.Errorf("voice model %q requires the openai speech backend, which is not configured", v)
		}
		return r.openai, voice, nil
	}
	return r.def, "", nil
}

// Request is one turn's worth of input: a complete audio sample (single-shot
// upload or aggregated stream window) plus the persona and voice selectors.
type Request struct {
	Audio      []byte
	MIMEType   string
	Category   config.Category
	VoiceModel config.VoiceModel
}

// Result is the successful outcome of a pipeline run.
type Result struct {
	// Text is the transcription of the caller's audio.
	Text string

	// Response is the generated reply.
	Response string

	// AudioDataURI is the synthesized reply as a data:audio/mp3;base64,…
	// URI ready for client playback.
	AudioDataURI string
}

// Config assembles a Pipeline.
type Config struct {
	STT        stt.Provider
	LLM        llm.Provider
	Speech     SpeechRouter
	Transcoder *media.Transcoder

	// Retry is applied independently to each remote stage.
	Retry RetryPolicy

	// TotalTimeout bounds one full run across all stages and retries.
	TotalTimeout time.Duration

	// Language is the pinned transcription locale.
	Language string

	// MaxUploadBytes caps the validated payload size.
	MaxUploadBytes int64

	// Metrics receives stage latencies and counters. Must not be nil; use
	// observe.DefaultMetrics() outside tests.
	Metrics *observe.Metrics

	// ProviderNames labels per-stage provider request metrics with the
	// configured backend names. Zero values leave the labels empty.
	ProviderNames ProviderNames

	// Audit receives one record per successful turn. May be nil.
	Audit audit.Store
}

// ProviderNames holds the configured backend names per remote stage, used as
// the provider attribute on request metrics.
type ProviderNames struct {
	STT string
	LLM string
	TTS string
}

// Pipeline executes voice turns. Safe for concurrent use; all per-turn state
// lives on the stack of Process.
type Pipeline struct {
	cfg Config
}

// New creates a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Process runs one full turn for sess.
//
// The caller's ctx signals client liveness: when it is cancelled mid-run the
// in-flight stage is allowed to finish against the pipeline's own time budget,
// but the session history is not updated for a turn the caller never saw.
// Validation failures surface as *ValidationError before any remote call.
func (p *Pipeline) Process(ctx context.Context, sess *session.Session, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "pipeline.process")
	defer span.End()
	log := observe.Logger(ctx).With("session_id", sess.ID())

	if err := media.Validate(req.Audio, req.MIMEType, media.Policy{MaxBytes: p.cfg.MaxUploadBytes}); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if _, _, err := p.cfg.Speech.Route(req.VoiceModel); err != nil {
		return nil, &ValidationError{Err: err}
	}

	// The run gets its own deadline, detached from client cancellation so an
	// already-dispatched remote call is not torn down by a disconnect.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.TotalTimeout)
	defer cancel()

	sample := req.Audio
	if media.NeedsTranscode(req.MIMEType) {
		transcoded, err := p.transcode(runCtx, sample)
		if err != nil {
			return nil, err
		}
		sample = transcoded
	} else {
		sample = media.NormalizeWAV(sample)
	}

	text, err := p.transcribe(runCtx, sample, req.MIMEType)
	if err != nil {
		return nil, err
	}
	log.Debug("transcription complete", "chars", len(text))

	reply, err := p.respond(runCtx, text, req.Category, sess.History())
	if err != nil {
		return nil, err
	}

	audio, err := p.synthesize(runCtx, reply, req.VoiceModel)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Text:         text,
		Response:     reply,
		AudioDataURI: audioDataURIPrefix + base64.StdEncoding.EncodeToString(audio.Data),
	}

	if ctx.Err() != nil {
		// Client disconnected mid-run: the turn completed but was never
		// delivered, so it must not shape future replies.
		log.Info("client gone before delivery, skipping history append")
		return result, nil
	}

	sess.AppendExchange(text, reply)

	duration := time.Since(start)
	p.cfg.Metrics.PipelineDuration.Record(runCtx, duration.Seconds())

	if p.cfg.Audit != nil {
		rec := audit.Record{
			SessionID:     sess.ID(),
			RequestID:     observe.CorrelationID(ctx),
			Category:      string(req.Category),
			VoiceModel:    string(req.VoiceModel),
			UserText:      text,
			AssistantText: reply,
			AudioBytes:    len(audio.Data),
			Duration:      duration,
			CreatedAt:     time.Now(),
		}
		if err := p.cfg.Audit.Write(runCtx, rec); err != nil {
			log.Warn("audit write failed", "error", err)
		}
	}

	return result, nil
}

// transcode converts the sample to 16 kHz mono WAV, retrying per policy.
func (p *Pipeline) transcode(ctx context.Context, sample []byte) ([]byte, error) {
	stageStart := time.Now()
	var out []byte
	attempts, err := p.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = p.cfg.Transcoder.ToWAV16k(ctx, sample)
		return opErr
	})
	p.recordStage(ctx, StageTranscode, "ffmpeg", p.cfg.Metrics.TranscodeDuration, stageStart, attempts, err)
	if err != nil {
		if stageErr := p.timeoutOr(ctx, StageTranscode); stageErr != nil {
			return nil, stageErr
		}
		return nil, &TranscodeError{Attempts: attempts, Err: err}
	}
	return out, nil
}

// transcribe runs the STT stage. Transcoded samples are always WAV.
func (p *Pipeline) transcribe(ctx context.Context, sample []byte, mimeType string) (string, error) {
	if media.NeedsTranscode(mimeType) {
		mimeType = "audio/wav"
	}

	stageStart := time.Now()
	var transcript stt.Transcript
	attempts, err := p.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var opErr error
		transcript, opErr = p.cfg.STT.Transcribe(ctx, stt.Request{
			Audio:    sample,
			MIMEType: mimeType,
			Language: p.cfg.Language,
		})
		return opErr
	})
	p.recordStage(ctx, StageTranscribe, p.cfg.ProviderNames.STT, p.cfg.Metrics.STTDuration, stageStart, attempts, err)
	if err != nil {
		if stageErr := p.timeoutOr(ctx, StageTranscribe); stageErr != nil {
			return "", stageErr
		}
		return "", &RemoteServiceError{Stage: StageTranscribe, Attempts: attempts, Err: err}
	}
	return transcript.Text, nil
}

// respond runs the LLM stage with the persona prompt and full history.
func (p *Pipeline) respond(ctx context.Context, text string, category config.Category, history []llm.Message) (string, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: text})

	creq := llm.CompletionRequest{
		SystemPrompt: config.PersonaPrompt(category),
		Messages:     messages,
		Temperature:  replyTemperature,
		MaxTokens:    replyMaxTokens,
	}

	stageStart := time.Now()
	var resp *llm.CompletionResponse
	attempts, err := p.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var opErr error
		resp, opErr = p.cfg.LLM.Complete(ctx, creq)
		if opErr == nil && resp == nil {
			opErr = errors.New("llm returned nil response")
		}
		return opErr
	})
	p.recordStage(ctx, StageRespond, p.cfg.ProviderNames.LLM, p.cfg.Metrics.LLMDuration, stageStart, attempts, err)
	if err != nil {
		if stageErr := p.timeoutOr(ctx, StageRespond); stageErr != nil {
			return "", stageErr
		}
		return "", &RemoteServiceError{Stage: StageRespond, Attempts: attempts, Err: err}
	}
	return resp.Content, nil
}

// synthesize runs the TTS stage against the routed backend.
func (p *Pipeline) synthesize(ctx context.Context, reply string, model config.VoiceModel) (tts.Audio, error) {
	backend, voice, err := p.cfg.Speech.Route(model)
	if err != nil {
		return tts.Audio{}, &ValidationError{Err: err}
	}

	stageStart := time.Now()
	var audio tts.Audio
	attempts, err := p.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var opErr error
		audio, opErr = backend.Synthesize(ctx, tts.Request{Text: reply, Voice: voice})
		return opErr
	})
	p.recordStage(ctx, StageSynthesize, p.cfg.ProviderNames.TTS, p.cfg.Metrics.TTSDuration, stageStart, attempts, err)
	if err != nil {
		if stageErr := p.timeoutOr(ctx, StageSynthesize); stageErr != nil {
			return tts.Audio{}, stageErr
		}
		return tts.Audio{}, &RemoteServiceError{Stage: StageSynthesize, Attempts: attempts, Err: err}
	}
	return audio, nil
}

// recordStage emits the latency histogram and retry/error counters for one
// stage run.
func (p *Pipeline) recordStage(ctx context.Context, stage Stage, provider string, hist metric.Float64Histogram, start time.Time, attempts int, err error) {
	hist.Record(ctx, time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.cfg.Metrics.RecordProviderRequest(ctx, provider, string(stage), status)
	if attempts > 1 {
		p.cfg.Metrics.RetryAttempts.Add(ctx, int64(attempts-1), metric.WithAttributes(
			attribute.String("stage", string(stage)),
		))
	}
	if err != nil {
		p.cfg.Metrics.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", string(stage)),
		))
	}
}

// timeoutOr returns a TimeoutError when the run deadline has expired, nil
// otherwise.
func (p *Pipeline) timeoutOr(ctx context.Context, stage Stage) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Stage: stage, Timeout: p.cfg.TotalTimeout}
	}
	return nil
}
