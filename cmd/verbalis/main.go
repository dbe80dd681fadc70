// Command verbalis is the main entry point for the Verbalis voice chat server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	oai "github.com/openai/openai-go"

	"github.com/verbalis-ai/verbalis/internal/audit"
	"github.com/verbalis-ai/verbalis/internal/config"
	"github.com/verbalis-ai/verbalis/internal/health"
	"github.com/verbalis-ai/verbalis/internal/media"
	"github.com/verbalis-ai/verbalis/internal/observe"
	"github.com/verbalis-ai/verbalis/internal/pipeline"
	"github.com/verbalis-ai/verbalis/internal/resilience"
	"github.com/verbalis-ai/verbalis/internal/server"
	"github.com/verbalis-ai/verbalis/internal/session"
	"github.com/verbalis-ai/verbalis/pkg/provider/llm"
	"github.com/verbalis-ai/verbalis/pkg/provider/llm/anyllm"
	oaillm "github.com/verbalis-ai/verbalis/pkg/provider/llm/openai"
	"github.com/verbalis-ai/verbalis/pkg/provider/stt"
	oaistt "github.com/verbalis-ai/verbalis/pkg/provider/stt/openai"
	"github.com/verbalis-ai/verbalis/pkg/provider/tts"
	"github.com/verbalis-ai/verbalis/pkg/provider/tts/gtrans"
	oaitts "github.com/verbalis-ai/verbalis/pkg/provider/tts/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "verbalis: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "verbalis: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("verbalis starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "verbalis",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	sttProvider, llmProvider, speech, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Audit store (optional) ────────────────────────────────────────────────
	var auditStore audit.Store
	var pgStore *audit.PostgresStore
	if cfg.Audit.PostgresDSN != "" {
		pgStore, err = audit.NewPostgresStore(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect audit store", "err", err)
			return 1
		}
		defer pgStore.Close()
		auditStore = pgStore
		slog.Info("audit store connected")
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	pipe := pipeline.New(pipeline.Config{
		STT:        sttProvider,
		LLM:        llmProvider,
		Speech:     speech,
		Transcoder: media.NewTranscoder(logger),
		Retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.Pipeline.RetryAttempts,
			Delay:       cfg.Pipeline.RetryDelay,
		},
		TotalTimeout:   cfg.Pipeline.TotalTimeout,
		Language:       cfg.Pipeline.Language,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Metrics:        metrics,
		ProviderNames: pipeline.ProviderNames{
			STT: cfg.Providers.STT.Name,
			LLM: cfg.Providers.LLM.Name,
			TTS: cfg.Providers.TTS.Name,
		},
		Audit: auditStore,
	})

	sessions := session.NewRegistry(cfg.Pipeline.HistoryLimit)

	// ── HTTP server ───────────────────────────────────────────────────────────
	checkers := []health.Checker{
		{Name: "ffmpeg", Check: func(ctx context.Context) error {
			return media.NewTranscoder(logger).Probe(ctx)
		}},
	}
	if pgStore != nil {
		checkers = append(checkers, health.Checker{Name: "audit", Check: pgStore.Ping})
	}

	srv := server.New(server.Config{
		ListenAddr:     cfg.Server.ListenAddr,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		ChunkThreshold: cfg.Pipeline.ChunkThreshold,
		MinChunkBytes:  cfg.Pipeline.MinChunkBytes,
		TLS:            cfg.Server.TLS,
	}, pipe, sessions, metrics, checkers...)

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders are the LLM backends reachable through the any-llm bridge.
// openai is not among them; it gets the native client for better error
// reporting and organization support.
var anyllmProviders = []string{
	"anthropic", "gemini",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// All cloud backends share the same pattern: optional APIKey + BaseURL.
	for _, providerName := range anyllmProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(oai.SpeechModel(entry.Model)))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		return oaitts.New(entry.APIKey, opts...), nil
	})

	reg.RegisterTTS("gtrans", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []gtrans.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, gtrans.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gtrans.WithBaseURL(entry.BaseURL))
		}
		return gtrans.New(opts...), nil
	})
}

// buildProviders instantiates the configured STT, LLM, and speech backends.
// The default speech backend is wrapped in a circuit-breaker fallback chain
// ending at the free gtrans backend, so replies keep flowing while a paid
// backend is down.
func buildProviders(cfg *config.Config, reg *config.Registry) (stt.Provider, llm.Provider, pipeline.SpeechRouter, error) {
	rawSTT, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	rawLLM, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	// Single-entry fallback groups still give STT and LLM circuit-breaker
	// protection, so a flapping upstream is shed instead of hammered.
	sttProvider := resilience.NewSTTFallback(rawSTT, cfg.Providers.STT.Name, resilience.FallbackConfig{})
	llmProvider := resilience.NewLLMFallback(rawLLM, cfg.Providers.LLM.Name, resilience.FallbackConfig{})

	ttsProvider, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	// The openai-* voice models need a dedicated OpenAI speech backend.
	// When the configured default already is openai, reuse it.
	var openaiTTS tts.Provider
	if cfg.Providers.TTS.Name == "openai" {
		openaiTTS = ttsProvider
	} else if key := cfg.Providers.TTS.APIKey; key != "" {
		openaiTTS = oaitts.New(key)
	}

	def := resilience.NewTTSFallback(ttsProvider, cfg.Providers.TTS.Name, resilience.FallbackConfig{})
	if cfg.Providers.TTS.Name != "gtrans" {
		def.AddFallback("gtrans", gtrans.New())
	}

	return sttProvider, llmProvider, pipeline.NewVoiceRouter(def, openaiTTS), nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Verbalis — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	if cfg.Audit.PostgresDSN != "" {
		fmt.Printf("║  Audit trail     : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Audit trail     : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
