package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"openai"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"openai", "gtrans"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued settings with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Pipeline.RetryAttempts == 0 {
		cfg.Pipeline.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.Pipeline.RetryDelay == 0 {
		cfg.Pipeline.RetryDelay = DefaultRetryDelay
	}
	if cfg.Pipeline.TotalTimeout == 0 {
		cfg.Pipeline.TotalTimeout = DefaultTotalTimeout
	}
	if cfg.Pipeline.Language == "" {
		cfg.Pipeline.Language = DefaultLanguage
	}
	if cfg.Pipeline.ChunkThreshold == 0 {
		cfg.Pipeline.ChunkThreshold = DefaultChunkThreshold
	}
	if cfg.Pipeline.MinChunkBytes == 0 {
		cfg.Pipeline.MinChunkBytes = DefaultMinChunkBytes
	}
	if cfg.Pipeline.HistoryLimit == 0 {
		cfg.Pipeline.HistoryLimit = DefaultHistoryLimit
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required; audio cannot be transcribed without it"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required; replies cannot be generated without it"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required; replies cannot be voiced without it"))
	}

	// Pipeline
	if cfg.Pipeline.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("pipeline.retry_attempts %d must be at least 1", cfg.Pipeline.RetryAttempts))
	}
	if cfg.Pipeline.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("pipeline.retry_delay %s must not be negative", cfg.Pipeline.RetryDelay))
	}
	if cfg.Pipeline.TotalTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.total_timeout %s must be positive", cfg.Pipeline.TotalTimeout))
	}
	if cfg.Pipeline.ChunkThreshold < 1 {
		errs = append(errs, fmt.Errorf("pipeline.chunk_threshold %d must be at least 1", cfg.Pipeline.ChunkThreshold))
	}
	if cfg.Pipeline.MinChunkBytes < 0 {
		errs = append(errs, fmt.Errorf("pipeline.min_chunk_bytes %d must not be negative", cfg.Pipeline.MinChunkBytes))
	}
	if cfg.Pipeline.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("pipeline.history_limit %d must be at least 1", cfg.Pipeline.HistoryLimit))
	}

	// Audit
	if cfg.Audit.PostgresDSN == "" {
		slog.Warn("audit.postgres_dsn is empty; request auditing is disabled")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
