package wavfile_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/drumcoach/pkg/audio"
	"github.com/MrWong99/drumcoach/pkg/audio/wavfile"
)

// writeWAV writes 16-bit PCM with the given channel count and returns its path.
func writeWAV(t *testing.T, rate, channels int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "take.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestStart_MissingFileIsNoInput(t *testing.T) {
	t.Parallel()
	src := wavfile.New(filepath.Join(t.TempDir(), "nope.wav"))
	_, err := src.Start(context.Background())
	if !errors.Is(err, audio.ErrNoInput) {
		t.Fatalf("err = %v, want ErrNoInput", err)
	}
}

func TestStart_InvalidFileIsNoInput(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("definitely not RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := wavfile.New(path).Start(context.Background())
	if !errors.Is(err, audio.ErrNoInput) {
		t.Fatalf("err = %v, want ErrNoInput", err)
	}
}

func TestStart_SlicesStereoFile(t *testing.T) {
	t.Parallel()

	const rate = 8000
	// One second of a stereo 1 kHz tone.
	data := make([]int, rate*2)
	for i := range rate {
		v := int(16000 * math.Sin(2*math.Pi*1000*float64(i)/rate))
		data[2*i] = v
		data[2*i+1] = v
	}
	path := writeWAV(t, rate, 2, data)

	src := wavfile.New(path,
		wavfile.WithFrameSize(256),
		wavfile.WithTickHz(50),
		wavfile.WithPaced(false),
	)
	defer src.Close()

	ch, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var frames []audio.AudioFrame
	for f := range ch {
		frames = append(frames, f)
	}
	// 8000 samples / 160-sample hop = 50 frames.
	if len(frames) != 50 {
		t.Fatalf("frames = %d, want 50", len(frames))
	}
	last := frames[len(frames)-1]
	if last.Timestamp != time.Second {
		t.Errorf("last timestamp = %v, want 1s", last.Timestamp)
	}
	if last.SampleRate != rate {
		t.Errorf("SampleRate = %d, want %d", last.SampleRate, rate)
	}
	if len(last.Samples) != 256 || last.NumBins() != 128 {
		t.Errorf("frame shape = %d samples / %d bins, want 256 / 128", len(last.Samples), last.NumBins())
	}

	// Peak should sit at 1000 Hz → bin 1000*256/8000 = 32.
	peak := 0
	for i, m := range last.Spectrum {
		if m > last.Spectrum[peak] {
			peak = i
		}
	}
	if peak != 32 {
		t.Errorf("peak bin = %d, want 32", peak)
	}
}

func TestStart_CancelStopsPacedStream(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 8000, 1, make([]int, 8000*30))
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := wavfile.New(path).Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		audio.Drain(ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}
