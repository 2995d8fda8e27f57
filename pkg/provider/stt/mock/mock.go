// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to return a canned transcription result and to verify which
// audio files and options callers passed in.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: &stt.Result{
//	        Language: "en",
//	        Segments: []stt.Segment{{Start: 0, End: 1.2, Text: "hello"}},
//	    },
//	}
//	res, _ := p.Transcribe(ctx, stt.Request{AudioPath: "audio.wav"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/redub/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Result is returned by Transcribe when Err is nil. A nil Result
	// yields an empty result rather than a nil pointer.
	Result *stt.Result

	// Results, when non-empty, is consumed one element per call before
	// falling back to Result. Use it to script differing outcomes across
	// consecutive calls.
	Results []*stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Errs, when non-empty, is consumed one element per call before
	// falling back to Err. Nil elements mean success for that call.
	Errs []error

	// --- Call records ---

	// TranscribeCalls records every invocation of Transcribe.
	TranscribeCalls []TranscribeCall
}

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the configured result or error.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: req})

	if len(p.Errs) > 0 {
		err := p.Errs[0]
		p.Errs = p.Errs[1:]
		if err != nil {
			return nil, err
		}
	} else if p.Err != nil {
		return nil, p.Err
	}

	if len(p.Results) > 0 {
		res := p.Results[0]
		p.Results = p.Results[1:]
		if res != nil {
			return res, nil
		}
	}
	if p.Result != nil {
		return p.Result, nil
	}
	return &stt.Result{}, nil
}

// TranscribeCallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) TranscribeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls and consumed scripts. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.Results = nil
	p.Errs = nil
}
