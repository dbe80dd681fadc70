package media

import "github.com/verbalis-ai/verbalis/pkg/audio"

// NormalizeWAV converts a PCM WAV sample to the 16 kHz mono format the
// transcription API works best with. Samples that are not canonical WAV, or
// are already 16 kHz mono, are returned unchanged; a malformed header is the
// validator's and the STT backend's problem, not ours.
func NormalizeWAV(sample []byte) []byte {
	info, err := audio.ProbeWAV(sample)
	if err != nil {
		return sample
	}
	if info.SampleRate == 16000 && info.Channels == 1 {
		return sample
	}
	if info.Channels > 2 || len(sample) <= 44 {
		return sample
	}
	pcm := audio.DownmixToMono16k(sample[44:], info)
	return audio.EncodeWAV(pcm, 16000, 1)
}
