// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider renders one dialogue segment per call: it receives the
// translated text, the assigned voice and the prosody offsets, writes the
// synthesized clip to the requested path and reports the clip's measured
// duration. The duration feeds the caller's sync loop, which compares it
// against the original segment length and re-renders with an adjusted rate
// when the two drift apart.
//
// Implementations must be safe for concurrent use; the synthesis stage
// renders several segments in parallel.
package tts

import (
	"context"
	"errors"
	"fmt"
)

// Request describes a single segment to synthesize.
type Request struct {
	// Text is the translated segment text. Must not be empty.
	Text string

	// Voice is the provider voice name, e.g. "es-MX-JorgeNeural". Providers
	// that do not support voice selection derive what they can from it (the
	// free Google endpoint extracts the language code).
	Voice string

	// RatePct is a relative speaking rate offset in percent. 0 is the
	// voice's natural rate, +20 is twenty percent faster. Providers without
	// prosody control ignore it.
	RatePct int

	// PitchHz is a relative pitch offset in Hz. Providers without prosody
	// control ignore it.
	PitchHz int

	// OutPath is the file the rendered clip is written to. The extension
	// should match the provider's Format.
	OutPath string
}

// Validate reports whether the request is complete enough to render.
func (r Request) Validate() error {
	var errs []error
	if r.Text == "" {
		errs = append(errs, errors.New("text must not be empty"))
	}
	if r.Voice == "" {
		errs = append(errs, errors.New("voice must not be empty"))
	}
	if r.OutPath == "" {
		errs = append(errs, errors.New("output path must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid synthesis request: %w", err)
	}
	return nil
}

// Clip is a rendered audio file.
type Clip struct {
	// Path is where the clip was written.
	Path string

	// Duration is the clip's measured length in seconds, decoded from the
	// file after rendering. A clip whose duration cannot be measured is
	// treated as a failed render and never returned.
	Duration float64
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Synthesize renders req.Text with req.Voice and writes the clip to
	// req.OutPath. It returns the written clip with its measured duration,
	// or an error if the render failed or produced an unreadable file.
	// A failed render must not leave a partial file behind as the result;
	// callers treat any returned error as "no clip for this segment".
	Synthesize(ctx context.Context, req Request) (*Clip, error)

	// Format returns the container format of rendered clips ("mp3" or
	// "wav"), used by callers to pick file extensions.
	Format() string
}
