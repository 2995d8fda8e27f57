package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/redub/pkg/audio"
)

// sineWave generates a mono sine wave as float64 samples in [-1, 1).
func sineWave(freq float64, sampleRate int, duration float64, amplitude float64) []float64 {
	n := int(duration * float64(sampleRate))
	out := make([]float64, n)
	for i := range n {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// pseudoNoise generates deterministic aperiodic samples via a linear
// congruential generator, avoiding rand so runs are reproducible.
func pseudoNoise(n int) []float64 {
	out := make([]float64, n)
	x := uint32(12345)
	for i := range n {
		x = x*1103515245 + 12345
		out[i] = float64(x>>1)/float64(1<<30) - 1
	}
	return out
}

func TestPCMToFloat64(t *testing.T) {
	pcm := samplesToBytes([]int16{0, 16384, -16384, 32767, -32768})
	got := audio.PCMToFloat64(pcm)
	want := []float64{0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPCMToFloat64_OddTrailingByte(t *testing.T) {
	pcm := []byte{0x00, 0x40, 0xFF} // one complete sample plus junk
	got := audio.PCMToFloat64(pcm)
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
}

func TestRMS(t *testing.T) {
	samples := []float64{0.5, -0.5, 0.5, -0.5}
	if got := audio.RMS(samples); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("got %v, want 0.5", got)
	}
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("empty input: got %v, want 0", got)
	}
}

func TestRMSDb(t *testing.T) {
	// Full-scale square wave sits at 0 dBFS.
	fullScale := []float64{1, -1, 1, -1}
	if got := audio.RMSDb(fullScale); math.Abs(got) > 1e-9 {
		t.Errorf("full scale: got %v dB, want 0", got)
	}
	// One tenth of full scale is -20 dBFS.
	quiet := []float64{0.1, -0.1, 0.1, -0.1}
	if got := audio.RMSDb(quiet); math.Abs(got+20) > 1e-9 {
		t.Errorf("quiet: got %v dB, want -20", got)
	}
	// Digital silence has no level.
	if got := audio.RMSDb(make([]float64, 100)); !math.IsInf(got, -1) {
		t.Errorf("silence: got %v, want -Inf", got)
	}
}

func TestEstimateF0_Sine(t *testing.T) {
	// 80 Hz has a period of exactly 200 samples at 16 kHz, and its
	// subharmonic (400 samples) falls outside the searched lag range, so
	// the estimate is unambiguous.
	samples := sineWave(80, 16000, 1.0, 0.8)
	f0, ok := audio.EstimateF0(samples, 16000)
	if !ok {
		t.Fatal("expected pitch to be detected")
	}
	if math.Abs(f0-80) > 0.5 {
		t.Errorf("got %v Hz, want 80", f0)
	}
}

func TestEstimateF0_LowPitch(t *testing.T) {
	samples := sineWave(64, 16000, 1.0, 0.3)
	f0, ok := audio.EstimateF0(samples, 16000)
	if !ok {
		t.Fatal("expected pitch to be detected")
	}
	if math.Abs(f0-64) > 0.5 {
		t.Errorf("got %v Hz, want 64", f0)
	}
}

func TestEstimateF0_Silence(t *testing.T) {
	samples := make([]float64, 16000)
	if f0, ok := audio.EstimateF0(samples, 16000); ok {
		t.Errorf("expected no pitch for silence, got %v Hz", f0)
	}
}

func TestEstimateF0_Noise(t *testing.T) {
	samples := pseudoNoise(16000)
	if f0, ok := audio.EstimateF0(samples, 16000); ok {
		t.Errorf("expected no pitch for noise, got %v Hz", f0)
	}
}

func TestEstimateF0_TooShort(t *testing.T) {
	// 50 ms is below the minimum analyzable clip length.
	samples := sineWave(80, 16000, 0.05, 0.8)
	if _, ok := audio.EstimateF0(samples, 16000); ok {
		t.Error("expected no pitch for clip shorter than the analysis minimum")
	}
}

func TestEstimateF0_InvalidRate(t *testing.T) {
	samples := sineWave(80, 16000, 1.0, 0.8)
	if _, ok := audio.EstimateF0(samples, 0); ok {
		t.Error("expected no pitch for zero sample rate")
	}
}
