package audio

import "time"

// DefaultFrameSize is the number of time-domain samples per analysis frame.
const DefaultFrameSize = 2048

// AudioFrame is one analysis tick's worth of audio flowing into the core.
// Frames are produced by a [Source] and are read-only to every consumer.
type AudioFrame struct {
	// Samples holds the mono time-domain signal, normalised to [-1, 1].
	Samples []float64

	// Spectrum holds the magnitude spectrum of Samples: len(Samples)/2 bins,
	// bin i centred on i*SampleRate/len(Samples) Hz.
	Spectrum []float64

	// SampleRate in Hz (e.g., 44100 or 48000).
	SampleRate int

	// Timestamp marks the end of the analysed window, relative to stream start.
	Timestamp time.Duration
}

// NumBins returns the number of spectrum bins in the frame.
func (f AudioFrame) NumBins() int {
	return len(f.Spectrum)
}
