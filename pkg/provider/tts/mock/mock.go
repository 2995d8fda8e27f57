// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to script per-segment render outcomes and to verify the
// text, voice and prosody offsets handed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Duration:  2.5,
//	    Durations: []float64{3.1, 2.4}, // first render long, re-render fits
//	}
//	clip, _ := p.Synthesize(ctx, req)
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/MrWong99/redub/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Duration is the clip duration reported for each render. Used when
	// Durations is exhausted or empty.
	Duration float64

	// Durations, if non-empty, is consumed one entry per successful call,
	// letting tests script a long first render and a corrected re-render.
	Durations []float64

	// Err, if non-nil, is returned from every call. Used when Errs is
	// exhausted or empty.
	Err error

	// Errs, if non-empty, is consumed one entry per call; nil entries mean
	// success. Lets tests script transient failures.
	Errs []error

	// WriteFile makes successful calls write a placeholder file to
	// req.OutPath, for callers that stat the rendered clip.
	WriteFile bool

	// FormatExt is returned by Format. Defaults to "mp3".
	FormatExt string

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	nextDuration int
	nextErr      int
}

// Synthesize records the call and returns the next scripted outcome.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})

	err := p.Err
	if p.nextErr < len(p.Errs) {
		err = p.Errs[p.nextErr]
		p.nextErr++
	}
	duration := p.Duration
	if err == nil && p.nextDuration < len(p.Durations) {
		duration = p.Durations[p.nextDuration]
		p.nextDuration++
	}
	writeFile := p.WriteFile
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if writeFile {
		if werr := os.WriteFile(req.OutPath, []byte("audio"), 0o644); werr != nil {
			return nil, werr
		}
	}
	return &tts.Clip{Path: req.OutPath, Duration: duration}, nil
}

// Format returns FormatExt, or "mp3" when unset.
func (p *Provider) Format() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FormatExt == "" {
		return "mp3"
	}
	return p.FormatExt
}

// SynthesizeCallCount returns the number of recorded calls. Thread-safe.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls and scripted positions. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.nextDuration = 0
	p.nextErr = 0
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
