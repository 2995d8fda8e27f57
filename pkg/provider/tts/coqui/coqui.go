// Package coqui provides a TTS provider backed by a locally running Coqui
// TTS server, either a standard server or an XTTS v2 API server. It
// implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts
//     with URL query parameters.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is
//     performed via POST /tts_to_audio/ with a JSON body.
//
// A local server keeps dubbing fully offline, which matters for material
// that must not leave the machine. Voices are the server's speaker IDs;
// the special voice "default" lets a single-speaker model pick its own.
// The server has no prosody control, so rate and pitch offsets in the
// request are ignored and timing is left to the caller's stretch step.
//
// Typical usage (standard server):
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("es"),
//	    coqui.WithTimeout(60*time.Second),
//	)
//	clip, err := p.Synthesize(ctx, req)
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/redub/pkg/audio"
	"github.com/MrWong99/redub/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// ---- constants ----

const (
	defaultLanguage = "en"
	defaultTimeout  = 120 * time.Second
	ttsEndpoint     = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"

	// DefaultVoice asks a single-speaker model to use its built-in voice
	// instead of a named speaker.
	DefaultVoice = "default"
)

// ---- APIMode ----

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// ---- options ----

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the TTS server (e.g., "en",
// "de", "es"). Defaults to "en". Only multilingual models use it.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the TTS
// server. Defaults to 120 s; local CPU inference is slow for long lines.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for
// the standard Coqui TTS Docker image or APIModeXTTS for the XTTS v2 API
// server.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// ---- Provider ----

// Provider implements tts.Provider backed by a locally running Coqui TTS
// server. It is safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
}

// New creates a new Coqui Provider that targets the TTS server at
// serverURL (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Format returns the container format of rendered clips.
func (p *Provider) Format() string {
	return "wav"
}

// ---- synthesis ----

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize renders req.Text on the local server and writes the WAV clip
// to req.OutPath. req.Voice names a server speaker ID; DefaultVoice lets a
// single-speaker model use its built-in voice.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}

	var wav []byte
	var err error
	if p.apiMode == APIModeXTTS {
		wav, err = p.synthesizeXTTS(ctx, req)
	} else {
		wav, err = p.synthesizeStandard(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	// Reject responses that are not WAV before committing them to disk.
	if _, err := audio.ParseWAV(wav); err != nil {
		return nil, fmt.Errorf("coqui: server response is not WAV: %w", err)
	}

	if err := os.WriteFile(req.OutPath, wav, 0o644); err != nil {
		return nil, fmt.Errorf("coqui: write clip: %w", err)
	}
	duration, err := audio.ClipDuration(req.OutPath)
	if err != nil {
		return nil, fmt.Errorf("coqui: rendered clip unreadable: %w", err)
	}
	return &tts.Clip{Path: req.OutPath, Duration: duration}, nil
}

// synthesizeXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode).
func (p *Provider) synthesizeXTTS(ctx context.Context, req tts.Request) ([]byte, error) {
	body := ttsRequest{
		Text:       req.Text,
		SpeakerWav: req.Voice,
		Language:   p.language,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")

	return p.do(httpReq, ttsEndpoint)
}

// synthesizeStandard performs a single GET /api/tts request (standard
// server mode) using URL query parameters.
func (p *Provider) synthesizeStandard(ctx context.Context, req tts.Request) ([]byte, error) {
	params := url.Values{}
	params.Set("text", req.Text)
	if req.Voice != DefaultVoice {
		params.Set("speaker_id", req.Voice)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/wav")

	return p.do(httpReq, apiTTSEndpoint)
}

func (p *Provider) do(httpReq *http.Request, endpoint string) ([]byte, error) {
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", httpReq.Method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", httpReq.Method, endpoint, resp.StatusCode)
	}
	wav, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}
