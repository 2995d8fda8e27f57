package resilience

import (
	"context"

	"github.com/MrWong99/redub/pkg/provider/translate"
)

// TranslateFallback implements [translate.Provider] with automatic failover
// across multiple translation backends. The usual chain is a rule-based
// primary with a generative fallback, so a broken local Apertium install
// degrades into LLM translations instead of failed jobs. Each backend has
// its own circuit breaker.
type TranslateFallback struct {
	group *FallbackGroup[translate.Provider]
}

// Compile-time interface assertion.
var _ translate.Provider = (*TranslateFallback)(nil)

// NewTranslateFallback creates a [TranslateFallback] with primary as the
// preferred backend.
func NewTranslateFallback(primary translate.Provider, primaryName string, cfg FallbackConfig) *TranslateFallback {
	return &TranslateFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional translation provider as a fallback.
func (f *TranslateFallback) AddFallback(name string, provider translate.Provider) {
	f.group.AddFallback(name, provider)
}

// TranslateBatch sends the batch to the first healthy provider. If the
// primary fails, subsequent fallbacks receive the same batch.
func (f *TranslateFallback) TranslateBatch(ctx context.Context, batch translate.Batch) ([]string, error) {
	return ExecuteWithResult(f.group, func(p translate.Provider) ([]string, error) {
		return p.TranslateBatch(ctx, batch)
	})
}
