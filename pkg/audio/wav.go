// Package audio provides small, dependency-free helpers for working with the
// PCM/WAV audio that flows through the Verbalis pipeline: RIFF container
// encoding and probing, sample-rate conversion, and channel downmixing.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// bitsPerSample is fixed at 16 for the signed little-endian PCM handled here.
const bitsPerSample = 16

// ErrNotWAV is returned by [ProbeWAV] when the input lacks a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE container")

// WAVInfo describes the format declared by a WAV file header.
type WAVInfo struct {
	SampleRate int
	Channels   int
	// DataSize is the declared size of the data sub-chunk in bytes.
	DataSize int
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct upload
// to a transcription API.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// IsWAV reports whether data begins with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WAVE"
}

// ProbeWAV parses the header of a WAV file and returns its declared format.
// Only canonical PCM files with a leading fmt sub-chunk are supported; this
// is sufficient for validating the output of the transcoder and for tests.
func ProbeWAV(data []byte) (WAVInfo, error) {
	if !IsWAV(data) {
		return WAVInfo{}, ErrNotWAV
	}
	if len(data) < 44 {
		return WAVInfo{}, fmt.Errorf("audio: truncated WAV header (%d bytes)", len(data))
	}
	if string(data[12:16]) != "fmt " {
		return WAVInfo{}, fmt.Errorf("audio: unexpected sub-chunk %q, want \"fmt \"", data[12:16])
	}
	info := WAVInfo{
		Channels:   int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate: int(binary.LittleEndian.Uint32(data[24:28])),
		DataSize:   int(binary.LittleEndian.Uint32(data[40:44])),
	}
	if info.Channels <= 0 || info.SampleRate <= 0 {
		return WAVInfo{}, fmt.Errorf("audio: invalid WAV format: %d channels at %d Hz", info.Channels, info.SampleRate)
	}
	return info, nil
}
