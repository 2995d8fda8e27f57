package assemble_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/redub/internal/job"
	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/internal/stage/assemble"
	mediamock "github.com/MrWong99/redub/pkg/media/mock"
)

func newJob(t *testing.T, sourceDuration float64, segs segment.List) *job.Job {
	t.Helper()
	src := filepath.Join(t.TempDir(), "input.mp4")
	if err := os.WriteFile(src, []byte("media"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	j, err := job.New(src, job.Options{
		TargetLanguage: "es",
		Concurrency:    1,
		ScratchRoot:    t.TempDir(),
	}, job.Deps{})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	t.Cleanup(func() { _ = j.Cleanup() })
	j.SetSourceDuration(sourceDuration)
	j.SetSegments(segs)
	return j
}

func TestRun_PreservesGaps(t *testing.T) {
	prim := &mediamock.Primitive{
		Durations: map[string]float64{
			"clip0.mp3": 2.0,
			"clip1.mp3": 2.0,
		},
	}
	j := newJob(t, 10.0, segment.List{
		{ID: 0, Start: 0, End: 2, Text: "Hello", AudioPath: "clip0.mp3"},
		{ID: 1, Start: 5, End: 7, Text: "World", AudioPath: "clip1.mp3"},
	})

	if err := assemble.New(prim).Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(prim.SilenceCalls) != 2 {
		t.Fatalf("GenerateSilence calls = %d, want 2", len(prim.SilenceCalls))
	}
	if got := prim.SilenceCalls[0].Duration; got != 3.0 {
		t.Errorf("gap silence = %vs, want 3", got)
	}
	if got := prim.SilenceCalls[1].Duration; got != 3.0 {
		t.Errorf("trailing silence = %vs, want 3", got)
	}

	if len(prim.ConcatCalls) != 1 {
		t.Fatalf("Concat calls = %d, want 1", len(prim.ConcatCalls))
	}
	concat := prim.ConcatCalls[0]
	if len(concat.Inputs) != 4 {
		t.Fatalf("concat inputs = %d, want 4 (clip, gap, clip, tail)", len(concat.Inputs))
	}
	if concat.Inputs[0] != "clip0.mp3" || concat.Inputs[2] != "clip1.mp3" {
		t.Errorf("concat order wrong: %v", concat.Inputs)
	}
	if concat.SampleRate != 48000 || concat.Channels != 2 {
		t.Errorf("concat format = %d Hz / %d ch, want 48000 / 2", concat.SampleRate, concat.Channels)
	}

	arts := j.Artifacts()
	if filepath.Base(arts.AssembledAudio) != "assembled.wav" {
		t.Errorf("AssembledAudio = %q, want assembled.wav", arts.AssembledAudio)
	}
	if got, _ := prim.ProbeDuration(context.Background(), arts.AssembledAudio); got != 10.0 {
		t.Errorf("assembled duration = %v, want 10", got)
	}
}

func TestRun_StretchesClipOntoSlot(t *testing.T) {
	prim := &mediamock.Primitive{
		Durations: map[string]float64{"clip0.mp3": 3.0},
	}
	j := newJob(t, 3.0, segment.List{
		{ID: 0, Start: 0, End: 2, Text: "long clip", AudioPath: "clip0.mp3"},
	})

	if err := assemble.New(prim).Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(prim.StretchCalls) != 1 {
		t.Fatalf("Stretch calls = %d, want 1", len(prim.StretchCalls))
	}
	call := prim.StretchCalls[0]
	if want := 2.0 / 3.0; math.Abs(call.Ratio-want) > 1e-9 {
		t.Errorf("stretch ratio = %v, want %v", call.Ratio, want)
	}
	if filepath.Base(call.Dst) != "stretched_0000.wav" {
		t.Errorf("stretch destination = %q, want stretched_0000.wav", call.Dst)
	}
	if got := prim.ConcatCalls[0].Inputs[0]; got != call.Dst {
		t.Errorf("concat uses %q, want the stretched clip %q", got, call.Dst)
	}
}

func TestRun_NoStretchWithinTolerance(t *testing.T) {
	prim := &mediamock.Primitive{
		Durations: map[string]float64{"clip0.mp3": 2.2},
	}
	j := newJob(t, 2.2, segment.List{
		{ID: 0, Start: 0, End: 2, Text: "close enough", AudioPath: "clip0.mp3"},
	})

	if err := assemble.New(prim).Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(prim.StretchCalls) != 0 {
		t.Errorf("Stretch calls = %d, want 0", len(prim.StretchCalls))
	}
	if got := prim.ConcatCalls[0].Inputs[0]; got != "clip0.mp3" {
		t.Errorf("concat uses %q, want the original clip", got)
	}
}

func TestRun_FailedSegmentBecomesSilence(t *testing.T) {
	prim := &mediamock.Primitive{
		Durations: map[string]float64{"clip0.mp3": 2.0},
	}
	j := newJob(t, 6.0, segment.List{
		{ID: 0, Start: 0, End: 2, Text: "rendered", AudioPath: "clip0.mp3"},
		{ID: 1, Start: 2, End: 5, Text: "failed render", Failed: true},
	})

	if err := assemble.New(prim).Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var gap *mediamock.SilenceCall
	for i := range prim.SilenceCalls {
		if strings.HasPrefix(filepath.Base(prim.SilenceCalls[i].Dst), "gap_") {
			gap = &prim.SilenceCalls[i]
		}
	}
	if gap == nil {
		t.Fatal("no slot silence generated for the failed segment")
	}
	if gap.Duration != 3.0 {
		t.Errorf("slot silence = %vs, want 3", gap.Duration)
	}
	// 2s clip + 3s slot + 1s tail.
	if got, _ := prim.ProbeDuration(context.Background(), j.Artifacts().AssembledAudio); got != 6.0 {
		t.Errorf("assembled duration = %v, want 6", got)
	}
}

func TestRun_StretchFailureKeepsUnstretchedClip(t *testing.T) {
	prim := &mediamock.Primitive{
		Durations:  map[string]float64{"clip0.mp3": 3.0},
		StretchErr: errors.New("rubberband exploded"),
	}
	j := newJob(t, 100.0, segment.List{
		{ID: 0, Start: 0, End: 2, Text: "long clip", AudioPath: "clip0.mp3"},
	})

	if err := assemble.New(prim).Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := prim.ConcatCalls[0].Inputs[0]; got != "clip0.mp3" {
		t.Errorf("concat uses %q, want the unstretched clip", got)
	}
}

func TestRun_ZeroSegmentsYieldsSilentTrack(t *testing.T) {
	prim := &mediamock.Primitive{}
	j := newJob(t, 10.0, nil)

	if err := assemble.New(prim).Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(prim.SilenceCalls) != 1 || prim.SilenceCalls[0].Duration != 10.0 {
		t.Fatalf("SilenceCalls = %+v, want one 10s stretch of silence", prim.SilenceCalls)
	}
	if got, _ := prim.ProbeDuration(context.Background(), j.Artifacts().AssembledAudio); got != 10.0 {
		t.Errorf("assembled duration = %v, want 10", got)
	}
}

func TestRun_DurationDriftFailsTheStage(t *testing.T) {
	// A 3.9s clip in a 2s slot wants ratio 0.51 but the stretcher stops
	// at 0.7, leaving 2.73s on a 2s timeline: drift 0.73s > max(0.5, 1%).
	prim := &mediamock.Primitive{
		Durations: map[string]float64{"clip0.mp3": 3.9},
	}
	j := newJob(t, 2.0, segment.List{
		{ID: 0, Start: 0, End: 2, Text: "way too long", AudioPath: "clip0.mp3"},
	})

	err := assemble.New(prim).Run(context.Background(), j)
	if err == nil {
		t.Fatal("Run succeeded, want duration invariant failure")
	}
	if !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("error = %v, want duration deviation message", err)
	}
}

func TestRun_SortsSegmentsByStart(t *testing.T) {
	prim := &mediamock.Primitive{
		Durations: map[string]float64{
			"late.mp3":  2.0,
			"early.mp3": 2.0,
		},
	}
	j := newJob(t, 7.0, segment.List{
		{ID: 1, Start: 5, End: 7, Text: "later", AudioPath: "late.mp3"},
		{ID: 0, Start: 0, End: 2, Text: "earlier", AudioPath: "early.mp3"},
	})

	if err := assemble.New(prim).Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}
	inputs := prim.ConcatCalls[0].Inputs
	if inputs[0] != "early.mp3" {
		t.Errorf("first concat input = %q, want early.mp3", inputs[0])
	}
}

func TestRun_ToleratedOverlapAddsNoSilence(t *testing.T) {
	prim := &mediamock.Primitive{
		Durations: map[string]float64{
			"clip0.mp3": 2.03,
			"clip1.mp3": 2.0,
		},
	}
	j := newJob(t, 4.0, segment.List{
		{ID: 0, Start: 0, End: 2.03, Text: "a", AudioPath: "clip0.mp3"},
		{ID: 1, Start: 2.0, End: 4.0, Text: "b", AudioPath: "clip1.mp3"},
	})

	if err := assemble.New(prim).Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(prim.SilenceCalls) != 0 {
		t.Errorf("SilenceCalls = %+v, want none for a 30ms overlap", prim.SilenceCalls)
	}
}

func TestRun_MissingSourceDuration(t *testing.T) {
	prim := &mediamock.Primitive{}
	j := newJob(t, 0, nil)

	if err := assemble.New(prim).Run(context.Background(), j); err == nil {
		t.Fatal("Run succeeded without a source duration")
	}
}
