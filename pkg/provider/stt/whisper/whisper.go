// Package whisper provides the local whisper.cpp-backed STT provider.
//
// The model is loaded once via the whisper.cpp CGO bindings and shared by
// every transcription; each Transcribe call creates its own inference
// context, so calls from concurrent jobs do not interfere. Before
// inference the audio is run through an energy-based voice-activity
// filter that splits it into utterance runs separated by configurable
// silence, which keeps long quiet stretches from producing hallucinated
// text. Word-level timestamps are assembled from token timings.
//
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h)
// must be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
//
// Usage:
//
//	p, err := whisper.New("models/ggml-base.bin", whisper.WithLanguage("en"))
//	res, err := p.Transcribe(ctx, stt.Request{
//	    AudioPath:      "audio.wav",
//	    WordTimestamps: true,
//	    MinSilenceMs:   500,
//	})
//	p.Close()
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MrWong99/redub/pkg/audio"
	"github.com/MrWong99/redub/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

const (
	// whisperSampleRate is the only sample rate whisper.cpp accepts.
	whisperSampleRate = 16000

	defaultBeamSize = 5
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default ISO 639-1 language code used when a request
// does not specify one. Defaults to auto-detection.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithBeamSize sets the beam search width. Larger values trade speed for
// accuracy. Defaults to 5.
func WithBeamSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.beamSize = n
		}
	}
}

// Provider implements stt.Provider using the whisper.cpp Go bindings (CGO),
// eliminating server round trips entirely. The model is loaded once and
// shared across all transcriptions.
type Provider struct {
	model    whisperlib.Model
	language string
	beamSize int
}

// New creates a Provider that loads the whisper.cpp model from the given
// file path. The caller must call Close when the provider is no longer
// needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		beamSize: defaultBeamSize,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe reads the WAV file named in req, applies voice-activity
// filtering when req.MinSilenceMs is set, and runs whisper.cpp inference
// over each speech run. Segment and word timestamps are reported relative
// to the start of the original file. Stereo or non-16 kHz input is
// converted before inference.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	samples, err := loadSamples(req.AudioPath)
	if err != nil {
		return nil, err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	runs := [][2]int{{0, len(samples)}}
	if req.MinSilenceMs > 0 {
		runs = speechRuns(samples, whisperSampleRate, req.MinSilenceMs)
	}

	result := &stt.Result{Language: lang}
	if req.Language != "" {
		// The caller asserted the language; there is nothing to detect.
		result.LanguageProbability = 1.0
	}

	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("whisper: cancelled after %d segments: %w", len(result.Segments), err)
		}
		offset := float64(run[0]) / whisperSampleRate
		segs, detected, err := p.transcribeRun(samples[run[0]:run[1]], lang, offset, req.WordTimestamps)
		if err != nil {
			return nil, err
		}
		result.Segments = append(result.Segments, segs...)
		if result.Language == "" || result.Language == "auto" {
			result.Language = detected
		}
	}
	return result, nil
}

// transcribeRun runs inference over one speech run with a fresh whisper
// context. Contexts are not safe for concurrent use, but the model is, so
// each run gets its own.
func (p *Provider) transcribeRun(samples []float32, lang string, offset float64, words bool) ([]stt.Segment, string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create context: %w", err)
	}

	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, "", fmt.Errorf("whisper: set language %q: %w", lang, err)
	}
	wctx.SetTranslate(false)
	wctx.SetTokenTimestamps(words)
	wctx.SetBeamSize(p.beamSize)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var segs []stt.Segment
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		s := stt.Segment{
			Start: offset + segment.Start.Seconds(),
			End:   offset + segment.End.Seconds(),
			Text:  text,
		}
		if words {
			s.Words = wordsFromTokens(segment.Tokens, offset)
		}
		segs = append(segs, s)
	}
	return segs, wctx.DetectedLanguage(), nil
}

// loadSamples reads a 16-bit PCM WAV file and returns float32 mono samples
// at the whisper sample rate, downmixing and resampling as needed.
func loadSamples(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: read audio file: %w", err)
	}
	info, err := audio.ParseWAV(data)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	if info.BitsPerSample != 16 {
		return nil, fmt.Errorf("whisper: unsupported sample width %d bits", info.BitsPerSample)
	}

	pcm := data[info.DataOffset : info.DataOffset+info.DataLen]
	switch info.Channels {
	case 1:
		// already mono
	case 2:
		pcm = audio.StereoToMono(pcm)
	default:
		return nil, fmt.Errorf("whisper: unsupported channel count %d", info.Channels)
	}
	if info.SampleRate != whisperSampleRate {
		pcm = audio.ResampleMono16(pcm, info.SampleRate, whisperSampleRate)
	}
	return pcmToFloat32(pcm), nil
}

// wordsFromTokens groups whisper tokens into words. Tokens are sub-word
// pieces; a leading space marks the start of a new word. Special marker
// tokens such as [_BEG_] are skipped.
func wordsFromTokens(tokens []whisperlib.Token, offset float64) []stt.Word {
	var words []stt.Word
	for _, tok := range tokens {
		if strings.HasPrefix(tok.Text, "[_") {
			continue
		}
		startsWord := strings.HasPrefix(tok.Text, " ")
		text := strings.TrimSpace(tok.Text)
		if text == "" {
			continue
		}
		if len(words) == 0 || startsWord {
			words = append(words, stt.Word{
				Text:  text,
				Start: offset + tok.Start.Seconds(),
				End:   offset + tok.End.Seconds(),
			})
			continue
		}
		last := &words[len(words)-1]
		last.Text += text
		last.End = offset + tok.End.Seconds()
	}
	return words
}
