// Package synth renders synthetic percussion clicks and serves them as an
// [audio.Source]. Each click is a one-frame tone burst whose spectrum lands in
// the band the onset classifier expects for that instrument:
//
//   - kick: 60 Hz sine, loud
//   - snare: 200 Hz sine
//   - hihat: 6 kHz sine
//   - openhat: 10 kHz sine
//
// Frames do not overlap. A click is placed in the frame whose end is nearest
// to the click time, so the detected onset time is the click time quantised
// to the frame duration.
//
// Simultaneous clicks are mixed into the same frame. The onset detector
// reports at most one hit per frame, so for every chord (say hi-hat and kick
// on the same step) one note is answered and the others are swept as missed.
// A flawless synthetic take of a pattern with chords therefore scores below
// 100%.
package synth

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/drumcoach/pkg/audio"
	"github.com/MrWong99/drumcoach/pkg/types"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

const (
	// DefaultSampleRate is the sample rate synthetic audio is rendered at.
	DefaultSampleRate = 44100

	// DefaultTail is the silence appended after the last click.
	DefaultTail = 500 * time.Millisecond
)

// Click is one synthetic hit.
type Click struct {
	// Time is the click time in seconds since stream start.
	Time float64

	// Instrument selects the voice.
	Instrument types.Instrument
}

// voice describes the tone burst rendered for an instrument.
type voice struct {
	freq float64
	amp  float64
}

var voices = map[types.Instrument]voice{
	types.Kick:    {freq: 60, amp: 0.9},
	types.Snare:   {freq: 200, amp: 0.5},
	types.HiHat:   {freq: 6000, amp: 0.3},
	types.OpenHat: {freq: 10000, amp: 0.3},
}

// Voice renders n samples of the tone burst for inst at sampleRate. Unknown
// instruments render silence.
func Voice(inst types.Instrument, n, sampleRate int) []float64 {
	out := make([]float64, n)
	v, ok := voices[inst]
	if !ok {
		return out
	}
	for i := range out {
		out[i] = v.amp * math.Sin(2*math.Pi*v.freq*float64(i)/float64(sampleRate))
	}
	return out
}

// Option configures a [Source].
type Option func(*Source)

// WithSampleRate sets the render sample rate. Default: 44100.
func WithSampleRate(rate int) Option {
	return func(s *Source) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithFrameSize sets the frame (and click burst) length in samples. Default: 2048.
func WithFrameSize(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.frameSize = n
		}
	}
}

// WithPaced controls whether frames are released in real time. Default: true.
func WithPaced(paced bool) Option {
	return func(s *Source) {
		s.paced = paced
	}
}

// WithTail sets the silence appended after the last click. Default: 500ms.
func WithTail(d time.Duration) Option {
	return func(s *Source) {
		if d >= 0 {
			s.tail = d
		}
	}
}

// Source serves rendered clicks as frames. Create one per session.
type Source struct {
	clicks     []Click
	sampleRate int
	frameSize  int
	paced      bool
	tail       time.Duration

	done     chan struct{}
	doneOnce sync.Once
}

// New returns a Source that renders clicks. The slice is copied and sorted by time.
func New(clicks []Click, opts ...Option) *Source {
	c := slices.Clone(clicks)
	slices.SortStableFunc(c, func(a, b Click) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	s := &Source{
		clicks:     c,
		sampleRate: DefaultSampleRate,
		frameSize:  audio.DefaultFrameSize,
		paced:      true,
		tail:       DefaultTail,
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FrameDuration returns the duration covered by one frame.
func (s *Source) FrameDuration() time.Duration {
	return time.Duration(int64(s.frameSize) * int64(time.Second) / int64(s.sampleRate))
}

// Render returns the time-domain signal split into frames. Frame k covers
// samples [k*size, (k+1)*size) and is stamped with its end time.
func (s *Source) Render() [][]float64 {
	frameSec := float64(s.frameSize) / float64(s.sampleRate)
	var last float64
	if n := len(s.clicks); n > 0 {
		last = s.clicks[n-1].Time
	}
	total := int(math.Ceil((last+s.tail.Seconds())/frameSec)) + 1

	frames := make([][]float64, total)
	for i := range frames {
		frames[i] = make([]float64, s.frameSize)
	}
	for _, c := range s.clicks {
		k := max(0, int(math.Round(c.Time/frameSec))-1)
		if k >= total {
			continue
		}
		burst := Voice(c.Instrument, s.frameSize, s.sampleRate)
		for i, v := range burst {
			frames[k][i] += v
		}
	}
	for _, f := range frames {
		audio.Clamp(f, nil)
	}
	return frames
}

// Start implements [audio.Source].
func (s *Source) Start(ctx context.Context) (<-chan audio.AudioFrame, error) {
	framer, err := audio.NewFramer(s.frameSize, s.sampleRate)
	if err != nil {
		return nil, err
	}
	rendered := s.Render()
	frameDur := s.FrameDuration()

	out := make(chan audio.AudioFrame, 4)
	go func() {
		defer close(out)
		start := time.Now()
		for k, samples := range rendered {
			ts := time.Duration(k+1) * frameDur
			if s.paced {
				if wait := time.Until(start.Add(ts)); wait > 0 {
					select {
					case <-time.After(wait):
					case <-ctx.Done():
						return
					case <-s.done:
						return
					}
				}
			}
			select {
			case out <- framer.Frame(samples, ts):
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
	return out, nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.doneOnce.Do(func() { close(s.done) })
	return nil
}
