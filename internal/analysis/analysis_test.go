package analysis_test

import (
	"math"
	"testing"

	"github.com/MrWong99/drumcoach/internal/analysis"
	"github.com/MrWong99/drumcoach/pkg/audio"
	"github.com/MrWong99/drumcoach/pkg/audio/synth"
	"github.com/MrWong99/drumcoach/pkg/types"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRMS(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", make([]float64, 64), 0},
		{"constant", []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"alternating", []float64{1, -1, 1, -1}, 1},
		{"mixed", []float64{3, 4}, math.Sqrt(12.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := analysis.RMS(tt.samples); !approx(got, tt.want) {
				t.Errorf("RMS = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnalyze_DominantFrequencyFirstMaxWins(t *testing.T) {
	t.Parallel()
	// 8 bins at 16 kHz → 1000 Hz per bin.
	frame := audio.AudioFrame{
		Samples:    []float64{0.1, -0.1},
		Spectrum:   []float64{0, 1, 5, 2, 5, 0, 0, 0},
		SampleRate: 16000,
	}
	m := analysis.Analyze(frame, analysis.DefaultBands())
	if m.DominantFrequencyHz != 2000 {
		t.Errorf("DominantFrequencyHz = %v, want 2000", m.DominantFrequencyHz)
	}
}

func TestAnalyze_Ratios(t *testing.T) {
	t.Parallel()
	// 8 bins at 16 kHz → bin i centres on i*1000 Hz.
	// mid [1000,4000): bins 1,2,3. high [4000,15000): bins 4..7.
	frame := audio.AudioFrame{
		Spectrum:   []float64{2, 1, 1, 0, 3, 1, 1, 1},
		SampleRate: 16000,
	}
	m := analysis.Analyze(frame, analysis.DefaultBands())
	if !approx(m.MidFreqRatio, 0.2) {
		t.Errorf("MidFreqRatio = %v, want 0.2", m.MidFreqRatio)
	}
	if !approx(m.HighFreqRatio, 0.6) {
		t.Errorf("HighFreqRatio = %v, want 0.6", m.HighFreqRatio)
	}
}

func TestAnalyze_ZeroEnergy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		frame audio.AudioFrame
	}{
		{"empty", audio.AudioFrame{}},
		{"silent spectrum", audio.AudioFrame{Samples: make([]float64, 16), Spectrum: make([]float64, 8), SampleRate: 16000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := analysis.Analyze(tt.frame, analysis.DefaultBands())
			if m != (analysis.Metrics{}) {
				t.Errorf("Analyze = %+v, want zero metrics", m)
			}
		})
	}
}

func TestAnalyze_CustomBands(t *testing.T) {
	t.Parallel()
	frame := audio.AudioFrame{
		Spectrum:   []float64{1, 1, 1, 1},
		SampleRate: 8000, // 1000 Hz per bin
	}
	bands := analysis.Bands{
		High: analysis.Band{Min: 3000, Max: 4000},
		Mid:  analysis.Band{Min: 0, Max: 1000},
	}
	m := analysis.Analyze(frame, bands)
	if !approx(m.HighFreqRatio, 0.25) || !approx(m.MidFreqRatio, 0.25) {
		t.Errorf("ratios = %v/%v, want 0.25/0.25", m.HighFreqRatio, m.MidFreqRatio)
	}
}

func TestAnalyze_SynthVoices(t *testing.T) {
	t.Parallel()

	framer, err := audio.NewFramer(audio.DefaultFrameSize, synth.DefaultSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	analyze := func(inst types.Instrument) analysis.Metrics {
		samples := synth.Voice(inst, audio.DefaultFrameSize, synth.DefaultSampleRate)
		return analysis.Analyze(framer.Frame(samples, 0), analysis.DefaultBands())
	}

	kick := analyze(types.Kick)
	if kick.RMS < 0.6 || kick.DominantFrequencyHz >= 100 {
		t.Errorf("kick metrics = %+v, want loud and below 100 Hz", kick)
	}
	hat := analyze(types.HiHat)
	if hat.HighFreqRatio <= 0.25 {
		t.Errorf("hihat HighFreqRatio = %v, want > 0.25", hat.HighFreqRatio)
	}
	if hat.DominantFrequencyHz < 5900 || hat.DominantFrequencyHz > 6100 {
		t.Errorf("hihat DominantFrequencyHz = %v, want ~6000", hat.DominantFrequencyHz)
	}
}

func TestBandsValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		bands   analysis.Bands
		wantErr bool
	}{
		{"defaults", analysis.DefaultBands(), false},
		{"inverted", analysis.Bands{High: analysis.Band{Min: 5000, Max: 4000}, Mid: analysis.Band{Min: 1, Max: 2}}, true},
		{"negative", analysis.Bands{High: analysis.Band{Min: -1, Max: 4000}, Mid: analysis.Band{Min: 1, Max: 2}}, true},
		{"nan", analysis.Bands{High: analysis.Band{Min: math.NaN(), Max: 4000}, Mid: analysis.Band{Min: 1, Max: 2}}, true},
		{"infinite", analysis.Bands{High: analysis.Band{Min: 1, Max: math.Inf(1)}, Mid: analysis.Band{Min: 1, Max: 2}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.bands.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
