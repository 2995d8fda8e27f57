// Package translate defines the Provider interface for machine translation
// backends.
//
// Translation runs in fixed-size batches of segment texts. A provider
// receives the lines of one batch together with the source and target
// language and returns exactly one translation per input line, in order.
// Two families of implementation exist: rule-based machine translation
// (apertium), which translates each line independently, and LLM-backed
// generative translation (openai, anyllm), which translates a whole batch
// in one prompt using the numbered enumeration protocol from this package.
//
// Backends surface HTTP failures as [StatusError] so callers can pick a
// retry schedule: rate limits back off longer than transient server
// errors, and other client errors are not retried at all.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Batch is one translation request covering the texts of consecutive
// segments.
type Batch struct {
	// Lines are the source texts in segment order. The pipeline filters
	// out empty texts before batching, so every line carries content.
	Lines []string

	// SourceLang and TargetLang are ISO 639-1 language codes, optionally
	// with a regional suffix ("en", "es", "pt-BR").
	SourceLang string
	TargetLang string

	// Context is a short hint describing the material ("movie dialogue",
	// "documentary narration") that generative providers use to choose
	// register and tone. Rule-based providers ignore it.
	Context string
}

// Provider is the abstraction over any machine translation backend.
type Provider interface {
	// TranslateBatch translates every line of the batch and returns one
	// output per input, in input order. The context bounds all network
	// round trips made for the batch.
	TranslateBatch(ctx context.Context, batch Batch) ([]string, error)
}

// StatusError reports a non-success HTTP status from a translation
// backend. Callers use [IsRateLimited] and [IsServerErr] to classify a
// failed batch.
type StatusError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Body is a snippet of the response body for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("translate: backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("translate: backend returned status %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited reports whether err carries an HTTP 429 status.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}

// IsServerErr reports whether err carries an HTTP 5xx status.
func IsServerErr(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 500 && se.StatusCode < 600
}
