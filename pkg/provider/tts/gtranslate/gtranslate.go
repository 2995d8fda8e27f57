// Package gtranslate provides a TTS provider backed by the Google Translate
// text-to-speech endpoint. It implements the tts.Provider interface.
//
// The endpoint is the one the translate.google.com web player uses: keyless
// and reliable, but with a single voice per language, no prosody control and
// a 200 character limit per request. It serves as the last-resort fallback
// when the primary provider keeps failing. Longer texts are split at word
// boundaries and the returned MP3 payloads are appended into one clip;
// decoders treat the result as a continuous frame stream.
//
// Rate and pitch offsets in the request are ignored.
package gtranslate

import (
	"bytes"
	"context"
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

const (
	defaultBaseURL = "https://translate.google.com/translate_tts"

	// maxChunkChars is the endpoint's per-request text limit.
	maxChunkChars = 200

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/130.0.0.0 Safari/537.36"
)

// Option is a functional option for configuring the gtranslate Provider.
type Option func(*Provider)

// WithBaseURL overrides the endpoint URL. Used by tests.
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

// Provider implements tts.Provider backed by the Google Translate endpoint.
type Provider struct {
	baseURL string
	client  *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new gtranslate Provider. The endpoint needs no credentials,
// so construction cannot fail.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Format returns the container format of rendered clips.
func (p *Provider) Format() string {
	return "mp3"
}

// Synthesize fetches req.Text chunk by chunk and writes the concatenated
// MP3 payloads to req.OutPath. The voice name is only used for its language
// prefix; the endpoint picks the voice itself.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("gtranslate: %w", err)
	}

	lang := langFromVoice(req.Voice)
	var buf bytes.Buffer
	for _, chunk := range chunkText(req.Text, maxChunkChars) {
		data, err := p.fetchChunk(ctx, chunk, lang)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("gtranslate: no audio returned for language %q", lang)
	}

	if err := os.WriteFile(req.OutPath, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("gtranslate: write clip: %w", err)
	}
	duration, err := audio.ClipDuration(req.OutPath)
	if err != nil {
		return nil, fmt.Errorf("gtranslate: rendered clip unreadable: %w", err)
	}
	return &tts.Clip{Path: req.OutPath, Duration: duration}, nil
}

func (p *Provider) fetchChunk(ctx context.Context, text, lang string) ([]byte, error) {
	query := url.Values{}
	query.Set("ie", "UTF-8")
	query.Set("client", "tw-ob")
	query.Set("tl", lang)
	query.Set("q", text)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("gtranslate: build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gtranslate: fetch chunk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtranslate: endpoint returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("gtranslate: read chunk: %w", err)
	}
	return data, nil
}

// langFromVoice maps a voice name to the endpoint's language code. Voices
// are named Edge-style ("es-MX-JorgeNeural") so the fallback can reuse the
// assignment made for the primary provider; bare codes pass through.
func langFromVoice(voice string) string {
	base, _, _ := strings.Cut(voice, "-")
	return strings.ToLower(base)
}

// chunkText splits text into pieces of at most max runes, breaking at word
// boundaries. Single words longer than max are hard-split.
func chunkText(text string, max int) []string {
	var chunks []string
	var cur []rune
	for _, word := range strings.Fields(text) {
		runes := []rune(word)
		for len(runes) > max {
			if len(cur) > 0 {
				chunks = append(chunks, string(cur))
				cur = nil
			}
			chunks = append(chunks, string(runes[:max]))
			runes = runes[max:]
		}
		switch {
		case len(runes) == 0:
		case len(cur) == 0:
			cur = append(cur, runes...)
		case len(cur)+1+len(runes) <= max:
			cur = append(cur, ' ')
			cur = append(cur, runes...)
		default:
			chunks = append(chunks, string(cur))
			cur = append([]rune(nil), runes...)
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, string(cur))
	}
	return chunks
}
