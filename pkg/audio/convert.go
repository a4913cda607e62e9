package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form, e.g. "44100Hz stereo".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// IntToFloat converts integer PCM of the given bit depth to float samples in
// [-1, 1). Bit depths outside 8..32 are treated as 16.
func IntToFloat(data []int, bitDepth int) []float64 {
	if bitDepth < 8 || bitDepth > 32 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))
	out := make([]float64, len(data))
	for i, v := range data {
		// 8-bit WAV is unsigned.
		if bitDepth == 8 {
			v -= 128
		}
		out[i] = float64(v) / scale
	}
	return out
}

// Downmix averages interleaved multi-channel samples into mono. Mono input is
// returned unchanged (zero allocation). Incomplete trailing frames are dropped.
func Downmix(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// Clamp limits every sample to [-1, 1] in place. It logs a warning the first
// time clipping occurs for the given guard.
func Clamp(samples []float64, warned *sync.Once) {
	for i, s := range samples {
		if s > 1 || s < -1 {
			if warned != nil {
				warned.Do(func() {
					slog.Warn("audio: samples out of range, clipping", "value", s)
				})
			}
			if s > 1 {
				samples[i] = 1
			} else {
				samples[i] = -1
			}
		}
	}
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
