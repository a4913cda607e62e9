// Package wavfile provides an [audio.Source] that replays a WAV file as a
// stream of analysis frames. It is the offline stand-in for a live capture
// device: the file is decoded once, downmixed to mono and sliced into
// frames at a fixed tick rate, optionally paced in real time.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"github.com/MrWong99/drumcoach/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

const (
	// DefaultTickHz is the default analysis tick rate.
	DefaultTickHz = 50.0
)

// Option configures a [Source].
type Option func(*Source)

// WithFrameSize sets the number of samples per analysis frame. Default: 2048.
func WithFrameSize(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.frameSize = n
		}
	}
}

// WithTickHz sets the analysis tick rate. Default: 50 Hz.
func WithTickHz(hz float64) Option {
	return func(s *Source) {
		if hz > 0 {
			s.tickHz = hz
		}
	}
}

// WithPaced controls whether frames are released in real time (true, the
// default) or as fast as the consumer reads them.
func WithPaced(paced bool) Option {
	return func(s *Source) {
		s.paced = paced
	}
}

// Source replays a WAV file. Create one per session.
type Source struct {
	path      string
	frameSize int
	tickHz    float64
	paced     bool

	done     chan struct{}
	doneOnce sync.Once
}

// New returns a Source for the WAV file at path. The file is opened by Start.
func New(path string, opts ...Option) *Source {
	s := &Source{
		path:      path,
		frameSize: audio.DefaultFrameSize,
		tickHz:    DefaultTickHz,
		paced:     true,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start implements [audio.Source]. It decodes the whole file before returning
// so that format problems surface as errors wrapping [audio.ErrNoInput].
func (s *Source) Start(ctx context.Context) (<-chan audio.AudioFrame, error) {
	samples, format, err := s.decode()
	if err != nil {
		return nil, err
	}

	framer, err := audio.NewFramer(s.frameSize, format.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("wavfile: %w", err)
	}
	slicer, err := audio.NewSlicer(framer, audio.HopForTick(format.SampleRate, s.tickHz))
	if err != nil {
		return nil, fmt.Errorf("wavfile: %w", err)
	}

	slog.Debug("wav source started",
		"path", s.path,
		"format", format.String(),
		"duration", time.Duration(int64(len(samples))*int64(time.Second)/int64(format.SampleRate)),
		"paced", s.paced,
	)

	out := make(chan audio.AudioFrame, 4)
	go s.stream(ctx, samples, slicer, out)
	return out, nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.doneOnce.Do(func() { close(s.done) })
	return nil
}

// decode reads the file into mono float samples.
func (s *Source) decode() ([]float64, audio.Format, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("wavfile: open %q: %w", s.path, errors.Join(audio.ErrNoInput, err))
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, audio.Format{}, fmt.Errorf("wavfile: %q is not a valid WAV file: %w", s.path, audio.ErrNoInput)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("wavfile: decode %q: %w", s.path, errors.Join(audio.ErrNoInput, err))
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, audio.Format{}, fmt.Errorf("wavfile: %q has no sample rate: %w", s.path, audio.ErrNoInput)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	format := audio.Format{SampleRate: buf.Format.SampleRate, Channels: buf.Format.NumChannels}
	samples := audio.Downmix(audio.IntToFloat(buf.Data, bitDepth), format.Channels)
	return samples, format, nil
}

// stream slices samples into frames and delivers them on out, closing out
// when done.
func (s *Source) stream(ctx context.Context, samples []float64, slicer *audio.Slicer, out chan<- audio.AudioFrame) {
	defer close(out)

	start := time.Now()
	chunk := audio.HopForTick(slicer.SampleRate(), s.tickHz)
	stopped := false
	for off := 0; off < len(samples) && !stopped; off += chunk {
		end := min(off+chunk, len(samples))
		slicer.Write(samples[off:end], func(frame audio.AudioFrame) {
			if stopped {
				return
			}
			if s.paced {
				if wait := time.Until(start.Add(frame.Timestamp)); wait > 0 {
					select {
					case <-time.After(wait):
					case <-ctx.Done():
						stopped = true
						return
					case <-s.done:
						stopped = true
						return
					}
				}
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				stopped = true
			case <-s.done:
				stopped = true
			}
		})
	}
}
