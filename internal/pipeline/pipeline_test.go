package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	auditmock "github.com/verbalis-ai/verbalis/internal/audit/mock"
	"github.com/verbalis-ai/verbalis/internal/config"
	"github.com/verbalis-ai/verbalis/internal/observe"
	"github.com/verbalis-ai/verbalis/internal/pipeline"
	"github.com/verbalis-ai/verbalis/internal/session"
	"github.com/verbalis-ai/verbalis/pkg/provider/llm"
	llmmock "github.com/verbalis-ai/verbalis/pkg/provider/llm/mock"
	"github.com/verbalis-ai/verbalis/pkg/provider/stt"
	sttmock "github.com/verbalis-ai/verbalis/pkg/provider/stt/mock"
	"github.com/verbalis-ai/verbalis/pkg/provider/tts"
	ttsmock "github.com/verbalis-ai/verbalis/pkg/provider/tts/mock"
)

// wavSample is a stand-in payload; the pipeline trusts the declared MIME type.
var wavSample = make([]byte, 512)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// testFixture bundles the mocks behind a ready-to-run pipeline.
type testFixture struct {
	stt      *sttmock.Provider
	llm      *llmmock.Provider
	def      *ttsmock.Provider
	openai   *ttsmock.Provider
	pipeline *pipeline.Pipeline
	registry *session.Registry
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		stt:      &sttmock.Provider{Transcript: stt.Transcript{Text: "hello"}},
		llm:      &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hi there"}},
		def:      &ttsmock.Provider{Audio: tts.Audio{Data: []byte("mp3"), MIMEType: "audio/mpeg"}},
		openai:   &ttsmock.Provider{Audio: tts.Audio{Data: []byte("mp3"), MIMEType: "audio/mpeg"}},
		registry: session.NewRegistry(10),
	}
	f.pipeline = pipeline.New(pipeline.Config{
		STT:            f.stt,
		LLM:            f.llm,
		Speech:         pipeline.NewVoiceRouter(f.def, f.openai),
		Retry:          pipeline.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
		TotalTimeout:   5 * time.Second,
		Language:       "en",
		MaxUploadBytes: 1 << 20,
		Metrics:        testMetrics(t),
	})
	return f
}

func (f *testFixture) process(t *testing.T, req pipeline.Request) (*pipeline.Result, error) {
	t.Helper()
	sess := f.registry.GetOrCreate("test-session")
	return f.pipeline.Process(context.Background(), sess, req)
}

func TestProcess_EndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stt.Transcript = stt.Transcript{Text: "Tell me about yourself"}
	f.llm.CompleteResponse = &llm.CompletionResponse{Content: "Sure, let's start..."}
	f.def.Audio = tts.Audio{Data: []byte("XY"), MIMEType: "audio/mpeg"}

	result, err := f.process(t, pipeline.Request{
		Audio:      wavSample,
		MIMEType:   "audio/wav",
		Category:   config.CategoryInterview,
		VoiceModel: config.VoiceDefault,
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.Text != "Tell me about yourself" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.Response != "Sure, let's start..." {
		t.Errorf("Response = %q", result.Response)
	}
	if result.AudioDataURI != "data:audio/mp3;base64,WFk=" {
		t.Errorf("AudioDataURI = %q, want data:audio/mp3;base64,WFk=", result.AudioDataURI)
	}

	// The interview persona reaches the LLM, with the new user turn last.
	req := f.llm.CompleteCalls[0].Req
	if req.SystemPrompt != config.PersonaPrompt(config.CategoryInterview) {
		t.Errorf("system prompt = %q, want interview persona", req.SystemPrompt)
	}
	if req.Temperature != 0.7 || req.MaxTokens != 150 {
		t.Errorf("generation params = (%v, %d), want (0.7, 150)", req.Temperature, req.MaxTokens)
	}

	// History gains exactly the user/assistant pair.
	hist := f.registry.GetOrCreate("test-session").History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].Role != "user" || hist[0].Content != "Tell me about yourself" {
		t.Errorf("hist[0] = %+v", hist[0])
	}
	if hist[1].Role != "assistant" || hist[1].Content != "Sure, let's start..." {
		t.Errorf("hist[1] = %+v", hist[1])
	}
}

func TestProcess_RejectsUnsupportedMIMEBeforeRemoteCalls(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.process(t, pipeline.Request{
		Audio:    wavSample,
		MIMEType: "audio/ogg",
		Category: config.CategoryGeneral,
	})

	var ve *pipeline.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Process() error = %v, want ValidationError", err)
	}
	if calls := f.stt.Calls(); calls != 0 {
		t.Errorf("stt calls = %d, want 0", calls)
	}
	if calls := len(f.llm.CompleteCalls); calls != 0 {
		t.Errorf("llm calls = %d, want 0", calls)
	}
}

func TestProcess_RejectsUnknownVoiceModel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.process(t, pipeline.Request{
		Audio:      wavSample,
		MIMEType:   "audio/wav",
		VoiceModel: config.VoiceModel("robotic"),
	})

	var ve *pipeline.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Process() error = %v, want ValidationError", err)
	}
	if calls := f.stt.Calls(); calls != 0 {
		t.Errorf("stt calls = %d, want 0", calls)
	}
}

func TestProcess_RetrySucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stt.Err = errors.New("transient")
	f.stt.FailFirst = 2

	result, err := f.process(t, pipeline.Request{
		Audio:    wavSample,
		MIMEType: "audio/wav",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Text != "hello" {
		t.Errorf("Text = %q, want hello", result.Text)
	}
	if calls := f.stt.Calls(); calls != 3 {
		t.Errorf("stt attempts = %d, want 3", calls)
	}
}

func TestProcess_RetryExhaustedLeavesHistoryUnchanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.llm.CompleteErr = errors.New("model overloaded")

	_, err := f.process(t, pipeline.Request{
		Audio:    wavSample,
		MIMEType: "audio/wav",
	})

	var rse *pipeline.RemoteServiceError
	if !errors.As(err, &rse) {
		t.Fatalf("Process() error = %v, want RemoteServiceError", err)
	}
	if rse.Stage != pipeline.StageRespond {
		t.Errorf("failed stage = %q, want respond", rse.Stage)
	}
	if rse.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", rse.Attempts)
	}

	if calls := len(f.def.Calls()); calls != 0 {
		t.Errorf("tts calls after respond failure = %d, want 0", calls)
	}
	if hist := f.registry.GetOrCreate("test-session").History(); len(hist) != 0 {
		t.Errorf("history length = %d, want 0 after failed turn", len(hist))
	}
}

func TestProcess_OpenAIVoiceRoutesToOpenAIBackend(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.process(t, pipeline.Request{
		Audio:      wavSample,
		MIMEType:   "audio/wav",
		VoiceModel: config.VoiceOpenAINova,
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if calls := len(f.def.Calls()); calls != 0 {
		t.Errorf("default backend calls = %d, want 0", calls)
	}
	calls := f.openai.Calls()
	if len(calls) != 1 {
		t.Fatalf("openai backend calls = %d, want 1", len(calls))
	}
	if calls[0].Req.Voice != "nova" {
		t.Errorf("voice = %q, want nova", calls[0].Req.Voice)
	}
}

func TestProcess_CountsProviderRequests(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := newFixture(t)
	f.pipeline = pipeline.New(pipeline.Config{
		STT:            f.stt,
		LLM:            f.llm,
		Speech:         pipeline.NewVoiceRouter(f.def, f.openai),
		Retry:          pipeline.RetryPolicy{MaxAttempts: 1, Delay: time.Millisecond},
		TotalTimeout:   5 * time.Second,
		Language:       "en",
		MaxUploadBytes: 1 << 20,
		Metrics:        metrics,
		ProviderNames:  pipeline.ProviderNames{STT: "openai", LLM: "openai", TTS: "gtrans"},
	})

	if _, err := f.process(t, pipeline.Request{Audio: wavSample, MIMEType: "audio/wav"}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	var sum *metricdata.Sum[int64]
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name == "verbalis.provider.requests" {
				if s, ok := met.Data.(metricdata.Sum[int64]); ok {
					sum = &s
				}
			}
		}
	}
	if sum == nil {
		t.Fatal("verbalis.provider.requests was not recorded")
	}

	// One request per remote stage for a wav upload: no transcode.
	var total int64
	stages := map[string]bool{}
	for _, dp := range sum.DataPoints {
		total += dp.Value
		for _, kv := range dp.Attributes.ToSlice() {
			switch string(kv.Key) {
			case "stage":
				stages[kv.Value.AsString()] = true
			case "status":
				if got := kv.Value.AsString(); got != "ok" {
					t.Errorf("status attr = %q, want ok", got)
				}
			}
		}
	}
	if total != 3 {
		t.Errorf("total provider requests = %d, want 3", total)
	}
	for _, stage := range []string{"transcribe", "respond", "synthesize"} {
		if !stages[stage] {
			t.Errorf("no data point recorded for stage %q", stage)
		}
	}
}

func TestProcess_WritesAuditRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	store := &auditmock.Store{}
	f.pipeline = pipeline.New(pipeline.Config{
		STT:            f.stt,
		LLM:            f.llm,
		Speech:         pipeline.NewVoiceRouter(f.def, f.openai),
		Retry:          pipeline.RetryPolicy{MaxAttempts: 1, Delay: time.Millisecond},
		TotalTimeout:   5 * time.Second,
		Language:       "en",
		MaxUploadBytes: 1 << 20,
		Metrics:        testMetrics(t),
		Audit:          store,
	})

	_, err := f.process(t, pipeline.Request{
		Audio:      wavSample,
		MIMEType:   "audio/wav",
		Category:   config.CategoryInterview,
		VoiceModel: config.VoiceDefault,
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	recs := store.Written()
	if len(recs) != 1 {
		t.Fatalf("audit records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.SessionID != "test-session" {
		t.Errorf("SessionID = %q", rec.SessionID)
	}
	if rec.UserText != "hello" || rec.AssistantText != "hi there" {
		t.Errorf("texts = (%q, %q), want (hello, hi there)", rec.UserText, rec.AssistantText)
	}
	if rec.Category != string(config.CategoryInterview) {
		t.Errorf("Category = %q", rec.Category)
	}
	if rec.AudioBytes != len("mp3") {
		t.Errorf("AudioBytes = %d, want %d", rec.AudioBytes, len("mp3"))
	}
}

func TestProcess_AuditFailureDoesNotFailTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	store := &auditmock.Store{Err: errors.New("db down")}
	f.pipeline = pipeline.New(pipeline.Config{
		STT:            f.stt,
		LLM:            f.llm,
		Speech:         pipeline.NewVoiceRouter(f.def, f.openai),
		Retry:          pipeline.RetryPolicy{MaxAttempts: 1, Delay: time.Millisecond},
		TotalTimeout:   5 * time.Second,
		Language:       "en",
		MaxUploadBytes: 1 << 20,
		Metrics:        testMetrics(t),
		Audit:          store,
	})

	result, err := f.process(t, pipeline.Request{
		Audio:    wavSample,
		MIMEType: "audio/wav",
	})
	if err != nil {
		t.Fatalf("Process() error = %v, audit failures must be swallowed", err)
	}
	if result.Response != "hi there" {
		t.Errorf("Response = %q", result.Response)
	}
	if len(store.Written()) != 1 {
		t.Errorf("audit write was not attempted")
	}
}

func TestProcess_ClientGoneSkipsHistoryAppend(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sess := f.registry.GetOrCreate("gone")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.pipeline.Process(ctx, sess, pipeline.Request{
		Audio:    wavSample,
		MIMEType: "audio/wav",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result == nil {
		t.Fatal("Process() returned nil result")
	}
	if hist := sess.History(); len(hist) != 0 {
		t.Errorf("history length = %d, want 0 after disconnected turn", len(hist))
	}
}
