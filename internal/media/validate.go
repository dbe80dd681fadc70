// Package media validates uploaded audio payloads and normalizes them for
// transcription.
//
// Validation is a pure policy check over the payload bytes and declared MIME
// type. Normalization shells out to ffmpeg for container formats the
// transcription backend cannot ingest directly (WebM/Opus from browser
// recorders).
package media

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// Sentinel errors returned by Validate. Callers classify upload failures with
// errors.Is.
var (
	ErrEmptyPayload    = errors.New("media: empty audio payload")
	ErrPayloadTooLarge = errors.New("media: audio payload exceeds size limit")
	ErrUnsupportedMIME = errors.New("media: unsupported audio format")
)

// codecRule states what the codecs parameter of an accepted base MIME type
// must look like.
type codecRule struct {
	// require is the codec the type must declare. Empty means the type
	// must not declare one: WAV is a bare PCM container and a codecs
	// parameter on it signals a confused client.
	require string
}

// allowedTypes is the authoritative allowlist of accepted base MIME types.
var allowedTypes = map[string]codecRule{
	"audio/wav":   {},
	"audio/wave":  {},
	"audio/x-wav": {},
	"audio/webm":  {require: "opus"},
}

// Policy bounds what Validate accepts.
type Policy struct {
	// MaxBytes is the largest payload accepted. 0 disables the size check.
	MaxBytes int64
}

// Validate checks payload and its declared MIME type against the allowlist
// and the policy. The declared MIME type is authoritative; payload bytes are
// not sniffed. The codec parameter is part of the decision: "audio/webm" is
// accepted only when it declares codecs=opus, and the wav variants only when
// they declare no codec at all.
func Validate(payload []byte, mimeType string, policy Policy) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if policy.MaxBytes > 0 && int64(len(payload)) > policy.MaxBytes {
		return fmt.Errorf("%w: %d bytes > %d", ErrPayloadTooLarge, len(payload), policy.MaxBytes)
	}

	base, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedMIME, mimeType)
	}

	rule, ok := allowedTypes[base]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedMIME, mimeType)
	}
	codec, declared := params["codecs"]
	if rule.require == "" {
		if declared {
			return fmt.Errorf("%w: %q must not declare a codec", ErrUnsupportedMIME, mimeType)
		}
		return nil
	}
	if !strings.EqualFold(codec, rule.require) {
		return fmt.Errorf("%w: %q requires codecs=%s", ErrUnsupportedMIME, mimeType, rule.require)
	}
	return nil
}

// NeedsTranscode reports whether audio with the given MIME type must be
// transcoded before transcription. WAV passes through; WebM/Opus does not.
func NeedsTranscode(mimeType string) bool {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return base == "audio/webm"
}
