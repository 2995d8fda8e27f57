// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider transcribes a complete audio file in one shot and returns
// an ordered list of timed segments, optionally with word-level timestamps.
// The pipeline always hands providers 16 kHz mono PCM WAV produced by the
// preprocess stage; implementations that need another format convert
// internally.
//
// Two implementations exist: a local whisper.cpp-backed provider (the
// primary path, no network required) and an OpenAI-compatible cloud
// provider used as fallback. Implementations must be safe for concurrent
// use; a single provider instance serves every job the daemon runs.
package stt

import (
	"context"
	"errors"
)

// ErrAudioTooLarge is returned when the audio file exceeds a provider's
// upload limit. The error is permanent for the given file; retrying cannot
// succeed.
var ErrAudioTooLarge = errors.New("stt: audio file exceeds provider size limit")

// Request describes a transcription of one audio file.
type Request struct {
	// AudioPath is the path of the audio file to transcribe. The pipeline
	// supplies 16 kHz mono 16-bit PCM WAV.
	AudioPath string

	// Language is the expected spoken language as an ISO 639-1 code
	// (e.g., "en", "de"). Empty lets the provider detect the language and
	// report it in the Result.
	Language string

	// WordTimestamps requests per-word timing. Providers that cannot
	// supply it return segments with empty Words rather than failing.
	WordTimestamps bool

	// MinSilenceMs is the minimum silence duration that separates
	// utterances during voice-activity filtering. Zero disables the
	// filter. Providers without a VAD step ignore it.
	MinSilenceMs int
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe runs speech recognition over the complete file named in
	// req and returns the ordered segments. An empty result with a nil
	// error is possible for silent input; callers decide whether that is
	// fatal. The context bounds the whole transcription including any
	// network round trips.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
