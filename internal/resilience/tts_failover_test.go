package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/redub/pkg/provider/tts"
	ttsmock "github.com/MrWong99/redub/pkg/provider/tts/mock"
)

func ttsReq(out string) tts.Request {
	return tts.Request{Text: "hola", Voice: "es-MX-JorgeNeural", OutPath: out}
}

func TestTTSFailover_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Provider{Duration: 2.5}
	fallback := &ttsmock.Provider{}

	f := NewTTSFailover(primary, fallback, RetryPolicy{Name: "tts"}, 3)
	clip, err := f.Synthesize(context.Background(), ttsReq("seg.mp3"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clip.Duration != 2.5 {
		t.Errorf("got duration %v, want 2.5", clip.Duration)
	}
	if n := fallback.SynthesizeCallCount(); n != 0 {
		t.Errorf("fallback called %d times, want 0", n)
	}
	if f.Switched() {
		t.Error("switched after a successful render")
	}
}

func TestTTSFailover_RetriesPrimary(t *testing.T) {
	primary := &ttsmock.Provider{Errs: []error{errors.New("render failed")}}
	fallback := &ttsmock.Provider{}

	policy := RetryPolicy{Name: "tts", Delays: []time.Duration{0}}
	f := NewTTSFailover(primary, fallback, policy, 3)
	if _, err := f.Synthesize(context.Background(), ttsReq("seg.mp3")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := primary.SynthesizeCallCount(); n != 2 {
		t.Errorf("primary called %d times, want 2", n)
	}
	if n := fallback.SynthesizeCallCount(); n != 0 {
		t.Errorf("fallback called %d times, want 0", n)
	}
}

func TestTTSFailover_SegmentFallsBack(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("render failed")}
	fallback := &ttsmock.Provider{Duration: 1.2}

	f := NewTTSFailover(primary, fallback, RetryPolicy{Name: "tts"}, 3)
	clip, err := f.Synthesize(context.Background(), ttsReq("seg.mp3"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clip.Duration != 1.2 {
		t.Errorf("got duration %v, want the fallback's 1.2", clip.Duration)
	}
	if f.Switched() {
		t.Error("switched after a single failure, want threshold of 3")
	}
}

func TestTTSFailover_SwitchesAfterConsecutiveFailures(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("render failed")}
	fallback := &ttsmock.Provider{}

	f := NewTTSFailover(primary, fallback, RetryPolicy{Name: "tts"}, 3)
	for i := range 3 {
		if _, err := f.Synthesize(context.Background(), ttsReq("seg.mp3")); err != nil {
			t.Fatalf("segment %d: unexpected error: %v", i, err)
		}
	}
	if !f.Switched() {
		t.Fatal("not switched after 3 consecutive primary failures")
	}

	// Remaining segments must not probe the primary again.
	if _, err := f.Synthesize(context.Background(), ttsReq("seg.mp3")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := primary.SynthesizeCallCount(); n != 3 {
		t.Errorf("primary called %d times, want 3", n)
	}
	if n := fallback.SynthesizeCallCount(); n != 4 {
		t.Errorf("fallback called %d times, want 4", n)
	}
}

func TestTTSFailover_SuccessResetsCount(t *testing.T) {
	renderErr := errors.New("render failed")
	primary := &ttsmock.Provider{Errs: []error{renderErr, nil, renderErr, renderErr, renderErr}}
	fallback := &ttsmock.Provider{}

	f := NewTTSFailover(primary, fallback, RetryPolicy{Name: "tts"}, 3)
	for i := range 4 {
		if _, err := f.Synthesize(context.Background(), ttsReq("seg.mp3")); err != nil {
			t.Fatalf("segment %d: unexpected error: %v", i, err)
		}
	}
	// Failure, success, failure, failure: the streak is 2, not 3.
	if f.Switched() {
		t.Fatal("switched although a success reset the streak")
	}
	if _, err := f.Synthesize(context.Background(), ttsReq("seg.mp3")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Switched() {
		t.Error("not switched after the streak reached 3")
	}
}

func TestTTSFailover_NoFallback(t *testing.T) {
	renderErr := errors.New("render failed")
	primary := &ttsmock.Provider{Err: renderErr}

	f := NewTTSFailover(primary, nil, RetryPolicy{Name: "tts"}, 3)
	for i := range 4 {
		if _, err := f.Synthesize(context.Background(), ttsReq("seg.mp3")); !errors.Is(err, renderErr) {
			t.Fatalf("segment %d: got %v, want render error", i, err)
		}
	}
	// Without a fallback there is nothing to switch to.
	if f.Switched() {
		t.Error("switched with no fallback configured")
	}
	if n := primary.SynthesizeCallCount(); n != 4 {
		t.Errorf("primary called %d times, want 4", n)
	}
}

func TestTTSFailover_FormatFollowsActiveProvider(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("render failed"), FormatExt: "wav"}
	fallback := &ttsmock.Provider{FormatExt: "mp3"}

	f := NewTTSFailover(primary, fallback, RetryPolicy{Name: "tts"}, 1)
	if got := f.Format(); got != "wav" {
		t.Errorf("got format %q, want %q before switch", got, "wav")
	}
	if _, err := f.Synthesize(context.Background(), ttsReq("seg.mp3")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.Format(); got != "mp3" {
		t.Errorf("got format %q, want %q after switch", got, "mp3")
	}
}
