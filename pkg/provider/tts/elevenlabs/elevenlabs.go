// Package elevenlabs provides an ElevenLabs-backed TTS provider. It
// implements the tts.Provider interface.
//
// ElevenLabs is the paid tier above the default read-aloud backend: voice
// quality suitable for cinematic dubbing, at the cost of an API key and a
// per-character quota. Requests go through the plain synthesis endpoint
// with the multilingual model, so one voice serves every target language.
//
// The service has no SSML prosody control; rate and pitch offsets in the
// request are ignored and timing is left to the caller's stretch step.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/MrWong99/redub/pkg/audio"
	"github.com/MrWong99/redub/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"

	// defaultModel is the multilingual synthesis model; the v2 generation
	// handles all pipeline target languages with one voice.
	defaultModel = "eleven_multilingual_v2"
)

// VoiceSettings tunes the synthesis character. The defaults are picked for
// movie dialogue: low stability for expressive delivery, high similarity to
// keep a speaker recognizable across segments.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings returns the dubbing-tuned settings used when no
// override is configured.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.35,
		SimilarityBoost: 0.85,
		Style:           0.25,
		UseSpeakerBoost: true,
	}
}

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the synthesis model ID.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// WithVoiceSettings overrides the synthesis settings.
func WithVoiceSettings(vs VoiceSettings) Option {
	return func(p *Provider) {
		p.settings = vs
	}
}

// Provider implements tts.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey   string
	model    string
	baseURL  string
	settings VoiceSettings
	client   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		baseURL:  defaultBaseURL,
		settings: DefaultVoiceSettings(),
		client:   &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Format returns the container format of rendered clips.
func (p *Provider) Format() string {
	return "mp3"
}

// ---- synthesis ----

// synthesisRequest is the JSON payload for POST /text-to-speech/{voice}.
type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesize renders req.Text with the ElevenLabs voice named by req.Voice
// (a raw voice ID such as "EXAVITQu4vr4xnSDxMaL") and writes the MP3 clip
// to req.OutPath.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}

	payload, err := json.Marshal(synthesisRequest{
		Text:          req.Text,
		ModelID:       p.model,
		VoiceSettings: p.settings,
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/text-to-speech/"+req.Voice, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: synthesis returned status %d: %s", resp.StatusCode, errorMessage(data))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("elevenlabs: no audio returned for voice %q", req.Voice)
	}

	if err := os.WriteFile(req.OutPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("elevenlabs: write clip: %w", err)
	}
	duration, err := audio.ClipDuration(req.OutPath)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: rendered clip unreadable: %w", err)
	}
	return &tts.Clip{Path: req.OutPath, Duration: duration}, nil
}

// ---- error parsing ----

// apiError mirrors the error body the API returns, e.g.
// {"detail": {"status": "quota_exceeded", "message": "..."}}.
type apiError struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// errorMessage extracts a readable message from an error response body,
// falling back to a snippet of the raw body.
func errorMessage(body []byte) string {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Detail.Message != "" {
		return apiErr.Detail.Message
	}
	const maxLen = 200
	s := string(body)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
