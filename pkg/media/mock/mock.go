// Package mock provides a test double for the media.Primitive interface.
//
// The mock records every call and fabricates artifacts: unless SkipWrites is
// set, each operation that produces a file writes a small stub to the
// destination path so stage code that stats its outputs keeps working.
// Durations are tracked in an internal table seeded from Durations and
// updated by GenerateSilence, Concat and Stretch, which lets assembly tests
// verify the cursor walk without real audio.
//
// Example:
//
//	p := &mock.Primitive{
//	    Durations: map[string]float64{"clip.mp3": 2.5},
//	}
//	d, _ := p.ProbeDuration(ctx, "clip.mp3") // 2.5
package mock

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrWong99/redub/pkg/media"
)

// ExtractAudioCall records a single invocation of ExtractAudio.
type ExtractAudioCall struct {
	Src        string
	Dst        string
	SampleRate int
	Channels   int
}

// ExtractRangeCall records a single invocation of ExtractRange.
type ExtractRangeCall struct {
	Src        string
	Dst        string
	Start      float64
	Duration   float64
	SampleRate int
	Channels   int
}

// ApplyFilterCall records a single invocation of ApplyFilter.
type ApplyFilterCall struct {
	Src    string
	Dst    string
	Filter string
}

// SilenceCall records a single invocation of GenerateSilence.
type SilenceCall struct {
	Dst        string
	Duration   float64
	SampleRate int
	Channels   int
}

// ConcatCall records a single invocation of Concat.
type ConcatCall struct {
	Inputs     []string
	Dst        string
	SampleRate int
	Channels   int
}

// StretchCall records a single invocation of Stretch.
type StretchCall struct {
	Src   string
	Dst   string
	Ratio float64
}

// MixCall records a single invocation of Mix.
type MixCall struct {
	Spec media.MixSpec
}

// EncodeCall records a single invocation of Encode.
type EncodeCall struct {
	Src  string
	Dst  string
	Spec media.EncodeSpec
}

// MuxCall records a single invocation of Mux.
type MuxCall struct {
	VideoSrc string
	AudioSrc string
	Dst      string
}

// Primitive is a mock implementation of media.Primitive.
type Primitive struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Durations maps paths to the duration ProbeDuration reports for them.
	// Operations that produce files add entries as they run.
	Durations map[string]float64

	// DefaultDuration is reported for paths missing from Durations.
	DefaultDuration float64

	// LoudnessResult is returned by AnalyzeLoudness.
	LoudnessResult media.Loudness

	// StretchMinRatio and StretchMaxRatio bound the ratio the mock applies,
	// mirroring the real primitive's clamping. Zero values default to the
	// pitch-preserving range [0.7, 1.5].
	StretchMinRatio float64
	StretchMaxRatio float64

	// SkipWrites disables stub file creation for destination paths.
	SkipWrites bool

	// Per-operation scripted errors. A non-nil value is returned by the
	// corresponding method after recording the call.
	ExtractAudioErr  error
	ExtractRangeErr  error
	ApplyFilterErr   error
	ProbeDurationErr error
	LoudnessErr      error
	SilenceErr       error
	ConcatErr        error
	StretchErr       error
	MixErr           error
	EncodeErr        error
	MuxErr           error

	// --- Call records ---

	ExtractAudioCalls  []ExtractAudioCall
	ExtractRangeCalls  []ExtractRangeCall
	ApplyFilterCalls   []ApplyFilterCall
	ProbeDurationCalls []string
	LoudnessCalls      []string
	SilenceCalls       []SilenceCall
	ConcatCalls        []ConcatCall
	StretchCalls       []StretchCall
	MixCalls           []MixCall
	EncodeCalls        []EncodeCall
	MuxCalls           []MuxCall
}

// ExtractAudio records the call, writes a stub file and copies the source
// duration entry to the destination.
func (p *Primitive) ExtractAudio(ctx context.Context, src, dst string, sampleRate, channels int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ExtractAudioCalls = append(p.ExtractAudioCalls, ExtractAudioCall{Src: src, Dst: dst, SampleRate: sampleRate, Channels: channels})
	if p.ExtractAudioErr != nil {
		return p.ExtractAudioErr
	}
	p.setDuration(dst, p.duration(src))
	return p.write(dst)
}

// ExtractRange records the call, writes a stub file and reports the window
// duration for the destination.
func (p *Primitive) ExtractRange(ctx context.Context, src, dst string, start, duration float64, sampleRate, channels int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ExtractRangeCalls = append(p.ExtractRangeCalls, ExtractRangeCall{Src: src, Dst: dst, Start: start, Duration: duration, SampleRate: sampleRate, Channels: channels})
	if p.ExtractRangeErr != nil {
		return p.ExtractRangeErr
	}
	p.setDuration(dst, duration)
	return p.write(dst)
}

// ApplyFilter records the call and writes a stub file preserving the source
// duration.
func (p *Primitive) ApplyFilter(ctx context.Context, src, dst, filter string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ApplyFilterCalls = append(p.ApplyFilterCalls, ApplyFilterCall{Src: src, Dst: dst, Filter: filter})
	if p.ApplyFilterErr != nil {
		return p.ApplyFilterErr
	}
	p.setDuration(dst, p.duration(src))
	return p.write(dst)
}

// ProbeDuration records the call and returns the tracked duration for path,
// falling back to DefaultDuration.
func (p *Primitive) ProbeDuration(ctx context.Context, path string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ProbeDurationCalls = append(p.ProbeDurationCalls, path)
	if p.ProbeDurationErr != nil {
		return 0, p.ProbeDurationErr
	}
	return p.duration(path), nil
}

// AnalyzeLoudness records the call and returns LoudnessResult, LoudnessErr.
func (p *Primitive) AnalyzeLoudness(ctx context.Context, path string) (media.Loudness, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LoudnessCalls = append(p.LoudnessCalls, path)
	return p.LoudnessResult, p.LoudnessErr
}

// GenerateSilence records the call, writes a stub file and reports the
// requested duration for the destination.
func (p *Primitive) GenerateSilence(ctx context.Context, dst string, duration float64, sampleRate, channels int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SilenceCalls = append(p.SilenceCalls, SilenceCall{Dst: dst, Duration: duration, SampleRate: sampleRate, Channels: channels})
	if p.SilenceErr != nil {
		return p.SilenceErr
	}
	p.setDuration(dst, duration)
	return p.write(dst)
}

// Concat records the call, writes a stub file and reports the summed input
// durations for the destination.
func (p *Primitive) Concat(ctx context.Context, inputs []string, dst string, sampleRate, channels int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	in := make([]string, len(inputs))
	copy(in, inputs)
	p.ConcatCalls = append(p.ConcatCalls, ConcatCall{Inputs: in, Dst: dst, SampleRate: sampleRate, Channels: channels})
	if p.ConcatErr != nil {
		return p.ConcatErr
	}
	var total float64
	for _, path := range inputs {
		total += p.duration(path)
	}
	p.setDuration(dst, total)
	return p.write(dst)
}

// Stretch records the call and simulates a clamped pitch-preserving stretch:
// the output duration is the input duration multiplied by the applied ratio.
func (p *Primitive) Stretch(ctx context.Context, src, dst string, ratio float64) (media.StretchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StretchCalls = append(p.StretchCalls, StretchCall{Src: src, Dst: dst, Ratio: ratio})
	if p.StretchErr != nil {
		return media.StretchResult{}, p.StretchErr
	}

	lo, hi := p.StretchMinRatio, p.StretchMaxRatio
	if lo == 0 && hi == 0 {
		lo, hi = 0.7, 1.5
	}
	applied := math.Min(hi, math.Max(lo, ratio))

	in := p.duration(src)
	res := media.StretchResult{
		InputDuration:  in,
		ActualDuration: in * applied,
		RequestedRatio: ratio,
		AppliedRatio:   applied,
		Clamped:        applied != ratio,
		Method:         media.StretchRubberband,
	}
	if math.Abs(ratio-1) <= 0.01 {
		res.ActualDuration = in
		res.AppliedRatio = ratio
		res.Clamped = false
		res.Method = media.StretchNone
	}
	p.setDuration(dst, res.ActualDuration)
	if err := p.write(dst); err != nil {
		return res, err
	}
	return res, nil
}

// Mix records the call and writes a stub output file.
func (p *Primitive) Mix(ctx context.Context, spec media.MixSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.MixCalls = append(p.MixCalls, MixCall{Spec: spec})
	if p.MixErr != nil {
		return p.MixErr
	}
	p.setDuration(spec.Output, math.Max(p.duration(spec.Background), p.duration(spec.Voice)))
	return p.write(spec.Output)
}

// Encode records the call and writes a stub file preserving the source
// duration.
func (p *Primitive) Encode(ctx context.Context, src, dst string, spec media.EncodeSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EncodeCalls = append(p.EncodeCalls, EncodeCall{Src: src, Dst: dst, Spec: spec})
	if p.EncodeErr != nil {
		return p.EncodeErr
	}
	p.setDuration(dst, p.duration(src))
	return p.write(dst)
}

// Mux records the call and writes a stub container file.
func (p *Primitive) Mux(ctx context.Context, videoSrc, audioSrc, dst string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.MuxCalls = append(p.MuxCalls, MuxCall{VideoSrc: videoSrc, AudioSrc: audioSrc, Dst: dst})
	if p.MuxErr != nil {
		return p.MuxErr
	}
	p.setDuration(dst, p.duration(videoSrc))
	return p.write(dst)
}

// SetDuration seeds or overrides the tracked duration for a path. Thread-safe.
func (p *Primitive) SetDuration(path string, d float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setDuration(path, d)
}

// Reset clears all recorded calls and tracked durations added by operations.
// Thread-safe.
func (p *Primitive) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ExtractAudioCalls = nil
	p.ExtractRangeCalls = nil
	p.ApplyFilterCalls = nil
	p.ProbeDurationCalls = nil
	p.LoudnessCalls = nil
	p.SilenceCalls = nil
	p.ConcatCalls = nil
	p.StretchCalls = nil
	p.MixCalls = nil
	p.EncodeCalls = nil
	p.MuxCalls = nil
}

func (p *Primitive) duration(path string) float64 {
	if d, ok := p.Durations[path]; ok {
		return d
	}
	return p.DefaultDuration
}

func (p *Primitive) setDuration(path string, d float64) {
	if p.Durations == nil {
		p.Durations = make(map[string]float64)
	}
	p.Durations[path] = d
}

func (p *Primitive) write(dst string) error {
	if p.SkipWrites {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("mock media artifact"), 0o644)
}

// Ensure Primitive implements media.Primitive at compile time.
var _ media.Primitive = (*Primitive)(nil)
