package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/redub/pkg/provider/translate"
	translatemock "github.com/MrWong99/redub/pkg/provider/translate/mock"
)

func TestTranslateFallback_PrimarySuccess(t *testing.T) {
	primary := &translatemock.Provider{Output: []string{"Hola.", "Adiós."}}
	secondary := &translatemock.Provider{}

	fb := NewTranslateFallback(primary, "apertium", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("openai", secondary)

	out, err := fb.TranslateBatch(context.Background(), translate.Batch{
		Lines:      []string{"Hello.", "Goodbye."},
		SourceLang: "en",
		TargetLang: "es",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0] != "Hola." {
		t.Fatalf("out[0] = %q, want Hola.", out[0])
	}
	if secondary.TranslateBatchCallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.TranslateBatchCallCount())
	}
}

func TestTranslateFallback_Failover(t *testing.T) {
	primary := &translatemock.Provider{Err: errors.New("pair not installed")}
	secondary := &translatemock.Provider{Output: []string{"Hallo."}}

	fb := NewTranslateFallback(primary, "apertium", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("openai", secondary)

	out, err := fb.TranslateBatch(context.Background(), translate.Batch{
		Lines:      []string{"Hello."},
		SourceLang: "en",
		TargetLang: "de",
		Context:    "movie dialogue",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0] != "Hallo." {
		t.Fatalf("out[0] = %q, want Hallo.", out[0])
	}
	// The batch must be forwarded unchanged, context hint included.
	calls := secondary.TranslateBatchCalls
	if len(calls) != 1 {
		t.Fatalf("secondary called %d times, want 1", len(calls))
	}
	if calls[0].Batch.Context != "movie dialogue" {
		t.Fatalf("forwarded Context = %q, want movie dialogue", calls[0].Batch.Context)
	}
}

func TestTranslateFallback_AllFail(t *testing.T) {
	primary := &translatemock.Provider{Err: errors.New("apy down")}
	secondary := &translatemock.Provider{Err: errors.New("llm down")}

	fb := NewTranslateFallback(primary, "apertium", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("openai", secondary)

	_, err := fb.TranslateBatch(context.Background(), translate.Batch{Lines: []string{"Hello."}})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
