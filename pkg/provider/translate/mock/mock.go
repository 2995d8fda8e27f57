// Package mock provides a test double for the translate.Provider
// interface.
//
// Use Provider to return canned translations and to verify which batches
// callers sent. Without any configuration the mock echoes the input lines,
// which keeps count invariants intact in tests that do not care about the
// translated text.
//
// Example:
//
//	p := &mock.Provider{Output: []string{"Hallo.", "Wie geht's?"}}
//	out, _ := p.TranslateBatch(ctx, translate.Batch{
//	    Lines:      []string{"Hello.", "How are you?"},
//	    SourceLang: "en",
//	    TargetLang: "de",
//	})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/redub/pkg/provider/translate"
)

// TranslateBatchCall records a single invocation of
// Provider.TranslateBatch.
type TranslateBatchCall struct {
	// Ctx is the context passed to TranslateBatch.
	Ctx context.Context
	// Batch is the Batch passed to TranslateBatch.
	Batch translate.Batch
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Output is returned by TranslateBatch when Err is nil. A nil Output
	// echoes the input lines back unchanged.
	Output []string

	// Outputs, when non-empty, is consumed one element per call before
	// falling back to Output. Use it to script differing outcomes across
	// consecutive calls.
	Outputs [][]string

	// Err, if non-nil, is returned as the error from TranslateBatch.
	Err error

	// Errs, when non-empty, is consumed one element per call before
	// falling back to Err. Nil elements mean success for that call.
	Errs []error

	// --- Call records ---

	// TranslateBatchCalls records every invocation of TranslateBatch.
	TranslateBatchCalls []TranslateBatchCall
}

// Compile-time assertion that Provider implements translate.Provider.
var _ translate.Provider = (*Provider)(nil)

// TranslateBatch records the call and returns the configured output or
// error.
func (p *Provider) TranslateBatch(ctx context.Context, batch translate.Batch) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.TranslateBatchCalls = append(p.TranslateBatchCalls, TranslateBatchCall{Ctx: ctx, Batch: batch})

	if len(p.Errs) > 0 {
		err := p.Errs[0]
		p.Errs = p.Errs[1:]
		if err != nil {
			return nil, err
		}
	} else if p.Err != nil {
		return nil, p.Err
	}

	if len(p.Outputs) > 0 {
		out := p.Outputs[0]
		p.Outputs = p.Outputs[1:]
		if out != nil {
			return out, nil
		}
	}
	if p.Output != nil {
		return p.Output, nil
	}

	echo := make([]string, len(batch.Lines))
	copy(echo, batch.Lines)
	return echo, nil
}

// TranslateBatchCallCount returns the number of TranslateBatch calls.
// Thread-safe.
func (p *Provider) TranslateBatchCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranslateBatchCalls)
}

// Reset clears all recorded calls and consumed scripts. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateBatchCalls = nil
	p.Outputs = nil
	p.Errs = nil
}
