package audio

import (
	"fmt"
	"math/cmplx"
	"time"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Framer turns a fixed-size window of mono samples into an [AudioFrame]: it
// applies a Hann window, runs a real FFT and keeps the lower half of the
// magnitude spectrum. Create one per stream; not designed for shared use
// across goroutines (it owns scratch buffers).
type Framer struct {
	size       int
	sampleRate int
	window     []float64
	fft        *fourier.FFT
	scratch    []float64
	coeffs     []complex128
}

// NewFramer returns a Framer for frames of size samples at sampleRate Hz.
// size must be an even number ≥ 2.
func NewFramer(size, sampleRate int) (*Framer, error) {
	if size < 2 || size%2 != 0 {
		return nil, fmt.Errorf("audio: frame size %d must be even and at least 2", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: sample rate %d must be positive", sampleRate)
	}
	return &Framer{
		size:       size,
		sampleRate: sampleRate,
		window:     window.Hann(size),
		fft:        fourier.NewFFT(size),
		scratch:    make([]float64, size),
	}, nil
}

// Size returns the number of time-domain samples per frame.
func (f *Framer) Size() int { return f.size }

// SampleRate returns the sample rate frames are tagged with.
func (f *Framer) SampleRate() int { return f.sampleRate }

// Frame builds an AudioFrame from samples. Shorter input is zero-padded at the
// front, longer input keeps only the most recent Size() samples. The returned
// frame owns its buffers.
func (f *Framer) Frame(samples []float64, ts time.Duration) AudioFrame {
	td := make([]float64, f.size)
	if len(samples) >= f.size {
		copy(td, samples[len(samples)-f.size:])
	} else {
		copy(td[f.size-len(samples):], samples)
	}

	for i, s := range td {
		f.scratch[i] = s * f.window[i]
	}
	f.coeffs = f.fft.Coefficients(f.coeffs, f.scratch)

	bins := f.size / 2
	spec := make([]float64, bins)
	scale := 2.0 / float64(f.size)
	for i := range bins {
		spec[i] = cmplx.Abs(f.coeffs[i]) * scale
	}

	return AudioFrame{
		Samples:    td,
		Spectrum:   spec,
		SampleRate: f.sampleRate,
		Timestamp:  ts,
	}
}

// Slicer accumulates a continuous mono signal and emits one frame every hop
// samples, each covering the most recent frame-size samples. Timestamps are
// derived from the number of samples consumed, so they are monotonic and
// independent of wall-clock jitter.
type Slicer struct {
	framer   *Framer
	hop      int
	history  []float64
	pending  int
	consumed int64
}

// NewSlicer returns a Slicer that emits a frame every hop samples.
func NewSlicer(framer *Framer, hop int) (*Slicer, error) {
	if hop <= 0 {
		return nil, fmt.Errorf("audio: hop %d must be positive", hop)
	}
	return &Slicer{
		framer:  framer,
		hop:     hop,
		history: make([]float64, framer.Size()),
	}, nil
}

// Write appends samples and calls emit for every completed hop, in order.
func (s *Slicer) Write(samples []float64, emit func(AudioFrame)) {
	for len(samples) > 0 {
		n := min(s.hop-s.pending, len(samples))
		s.history = append(s.history[n:], samples[:n]...)
		samples = samples[n:]
		s.pending += n
		s.consumed += int64(n)
		if s.pending == s.hop {
			s.pending = 0
			emit(s.framer.Frame(s.history, s.timestamp()))
		}
	}
}

// SampleRate returns the sample rate of the underlying framer.
func (s *Slicer) SampleRate() int {
	return s.framer.SampleRate()
}

func (s *Slicer) timestamp() time.Duration {
	return time.Duration(s.consumed * int64(time.Second) / int64(s.framer.SampleRate()))
}

// HopForTick returns the hop size in samples for a tick rate in Hz, at least 1.
func HopForTick(sampleRate int, tickHz float64) int {
	if tickHz <= 0 {
		return sampleRate
	}
	return max(1, int(float64(sampleRate)/tickHz))
}
