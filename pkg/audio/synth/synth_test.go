package synth_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/drumcoach/pkg/audio"
	"github.com/MrWong99/drumcoach/pkg/audio/synth"
	"github.com/MrWong99/drumcoach/pkg/types"
)

func energy(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return sum
}

func TestVoice_UnknownIsSilent(t *testing.T) {
	t.Parallel()
	if e := energy(synth.Voice(types.Unknown, 256, 44100)); e != 0 {
		t.Errorf("energy = %v, want 0", e)
	}
	if e := energy(synth.Voice(types.Kick, 256, 44100)); e == 0 {
		t.Error("kick voice should not be silent")
	}
}

func TestRender_PlacesClickInNearestFrame(t *testing.T) {
	t.Parallel()

	// 1000 Hz, 100-sample frames → 0.1 s per frame.
	src := synth.New([]synth.Click{{Time: 0.5, Instrument: types.Snare}},
		synth.WithSampleRate(1000),
		synth.WithFrameSize(100),
		synth.WithTail(250*time.Millisecond),
	)
	frames := src.Render()

	// last click 0.5 + tail 0.25 → ceil(7.5) + 1 = 9 frames.
	if len(frames) != 9 {
		t.Fatalf("frames = %d, want 9", len(frames))
	}
	for k, f := range frames {
		e := energy(f)
		if k == 4 && e == 0 {
			t.Errorf("frame 4 (ending at 0.5s) should contain the click")
		}
		if k != 4 && e != 0 {
			t.Errorf("frame %d should be silent, energy %v", k, e)
		}
	}
}

func TestRender_EarlyClickClampsToFirstFrame(t *testing.T) {
	t.Parallel()
	src := synth.New([]synth.Click{{Time: 0, Instrument: types.Kick}},
		synth.WithSampleRate(1000), synth.WithFrameSize(100))
	frames := src.Render()
	if energy(frames[0]) == 0 {
		t.Error("click at t=0 should land in frame 0")
	}
}

func TestStart_DeliversAllFramesUnpaced(t *testing.T) {
	t.Parallel()

	src := synth.New([]synth.Click{{Time: 0.2, Instrument: types.HiHat}},
		synth.WithSampleRate(1000),
		synth.WithFrameSize(100),
		synth.WithTail(0),
		synth.WithPaced(false),
	)
	defer src.Close()

	ch, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var got []audio.AudioFrame
	for f := range ch {
		got = append(got, f)
	}
	if len(got) != 3 {
		t.Fatalf("frames = %d, want 3", len(got))
	}
	for i, f := range got {
		want := time.Duration(i+1) * 100 * time.Millisecond
		if f.Timestamp != want {
			t.Errorf("frame %d timestamp = %v, want %v", i, f.Timestamp, want)
		}
		if f.NumBins() != 50 {
			t.Errorf("frame %d bins = %d, want 50", i, f.NumBins())
		}
	}
}

func TestClose_StopsStream(t *testing.T) {
	t.Parallel()

	src := synth.New([]synth.Click{{Time: 30, Instrument: types.Kick}})
	ch, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	done := make(chan struct{})
	go func() {
		audio.Drain(ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after Close")
	}
}
