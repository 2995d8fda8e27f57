package whisper

import (
	"math"
	"testing"
)

// makeSignal builds a float32 buffer from alternating quiet/loud spans
// given as (durationMs, loud) pairs at 16 kHz.
func makeSignal(spans ...span) []float32 {
	var out []float32
	for _, sp := range spans {
		n := 16000 * sp.ms / 1000
		for i := range n {
			if sp.loud {
				out = append(out, float32(0.5*math.Sin(2*math.Pi*440*float64(i)/16000)))
			} else {
				out = append(out, 0)
			}
		}
	}
	return out
}

type span struct {
	ms   int
	loud bool
}

func TestSpeechRuns_SingleUtterance(t *testing.T) {
	samples := makeSignal(span{300, false}, span{1000, true}, span{800, false})
	runs := speechRuns(samples, 16000, 500)
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	// Speech spans samples 4800..20800; padding widens by 100 ms (1600).
	start, end := runs[0][0], runs[0][1]
	if start < 3200 || start > 4800 {
		t.Errorf("start = %d, want near 4800 minus padding", start)
	}
	if end < 20800 || end > 22400 {
		t.Errorf("end = %d, want near 20800 plus padding", end)
	}
}

func TestSpeechRuns_SplitsOnLongSilence(t *testing.T) {
	samples := makeSignal(
		span{500, true},
		span{800, false}, // above the 500 ms threshold
		span{500, true},
	)
	runs := speechRuns(samples, 16000, 500)
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
}

func TestSpeechRuns_ShortGapDoesNotSplit(t *testing.T) {
	samples := makeSignal(
		span{500, true},
		span{300, false}, // below the 500 ms threshold
		span{500, true},
	)
	runs := speechRuns(samples, 16000, 500)
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
}

func TestSpeechRuns_Silence(t *testing.T) {
	samples := makeSignal(span{2000, false})
	if runs := speechRuns(samples, 16000, 500); len(runs) != 0 {
		t.Fatalf("got %d runs for silence, want 0", len(runs))
	}
}

func TestSpeechRuns_DropsBlips(t *testing.T) {
	// 50 ms of sound is below the minimum speech duration.
	samples := makeSignal(span{500, false}, span{50, true}, span{1000, false})
	if runs := speechRuns(samples, 16000, 500); len(runs) != 0 {
		t.Fatalf("got %d runs for a 50 ms blip, want 0", len(runs))
	}
}

func TestSpeechRuns_Empty(t *testing.T) {
	if runs := speechRuns(nil, 16000, 500); len(runs) != 0 {
		t.Fatalf("got %d runs for empty input, want 0", len(runs))
	}
}

func TestFrameRMS(t *testing.T) {
	if got := frameRMS(nil); got != 0 {
		t.Errorf("empty frame: got %v, want 0", got)
	}
	frame := []float32{0.5, -0.5, 0.5, -0.5}
	if got := frameRMS(frame); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("got %v, want 0.5", got)
	}
}
