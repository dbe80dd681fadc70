package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/verbalis-ai/verbalis/pkg/audio"
)

// Transcoder converts browser-recorded audio into 16 kHz mono WAV by shelling
// out to ffmpeg. The zero value is not usable; construct with NewTranscoder.
type Transcoder struct {
	ffmpegPath string
	scratchDir string
	logger     *slog.Logger
}

// TranscoderOption configures a Transcoder.
type TranscoderOption func(*Transcoder)

// WithFFmpegPath overrides the ffmpeg binary path. Defaults to "ffmpeg"
// resolved via PATH.
func WithFFmpegPath(path string) TranscoderOption {
	return func(t *Transcoder) {
		t.ffmpegPath = path
	}
}

// WithScratchDir sets the directory for temporary files. Defaults to the
// system temp directory.
func WithScratchDir(dir string) TranscoderOption {
	return func(t *Transcoder) {
		t.scratchDir = dir
	}
}

// NewTranscoder creates a Transcoder.
func NewTranscoder(logger *slog.Logger, opts ...TranscoderOption) *Transcoder {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transcoder{
		ffmpegPath: "ffmpeg",
		scratchDir: os.TempDir(),
		logger:     logger,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// ToWAV16k transcodes input (any container ffmpeg understands, in practice
// WebM/Opus) into a 16 kHz mono 16-bit WAV file and returns its bytes.
// Scratch files are removed before returning; removal failures are logged,
// not returned.
func (t *Transcoder) ToWAV16k(ctx context.Context, input []byte) ([]byte, error) {
	scratch, err := os.MkdirTemp(t.scratchDir, "verbalis-transcode-*")
	if err != nil {
		return nil, fmt.Errorf("media: create scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			t.logger.Warn("failed to remove transcode scratch dir", "dir", scratch, "error", rmErr)
		}
	}()

	inPath := filepath.Join(scratch, "input.webm")
	outPath := filepath.Join(scratch, "output.wav")
	if err := os.WriteFile(inPath, input, 0o600); err != nil {
		return nil, fmt.Errorf("media: write scratch input: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", inPath,
		"-ar", "16000",
		"-ac", "1",
		"-sample_fmt", "s16",
		"-f", "wav",
		"-y", outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("media: transcode cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("media: ffmpeg failed: %w: %s", err, firstLine(stderr.String()))
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("media: read transcoded output: %w", err)
	}

	info, err := audio.ProbeWAV(out)
	if err != nil {
		return nil, fmt.Errorf("media: ffmpeg output rejected: %w", err)
	}
	t.logger.Debug("transcode complete",
		"sample_rate", info.SampleRate,
		"channels", info.Channels,
		"bytes", len(out),
	)
	return out, nil
}

// Probe checks that the ffmpeg binary is runnable. Used as a readiness check.
func (t *Transcoder) Probe(ctx context.Context) error {
	if err := exec.CommandContext(ctx, t.ffmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("media: ffmpeg not runnable at %q: %w", t.ffmpegPath, err)
	}
	return nil
}

// firstLine trims stderr down to its first non-empty line for error messages.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return "no stderr output"
}
