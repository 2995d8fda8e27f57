// Package openaicloud provides a cloud STT provider backed by an
// OpenAI-compatible transcription endpoint (POST /audio/transcriptions).
//
// It is the fallback path behind the local whisper provider: the audio is
// uploaded as multipart/form-data and the verbose JSON response is
// normalized into stt.Result. Files beyond the API upload cap fail fast
// with stt.ErrAudioTooLarge so callers do not waste a network round trip.
//
// Usage:
//
//	p, err := openaicloud.New(os.Getenv("OPENAI_API_KEY"))
//	res, err := p.Transcribe(ctx, stt.Request{AudioPath: "audio.wav", WordTimestamps: true})
package openaicloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/redub/pkg/provider/stt"
)

// ---- constants ----

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "whisper-1"

	// maxUploadBytes keeps a safety margin below the 25 MB API limit.
	maxUploadBytes = 24 * 1024 * 1024

	// Grouping rules applied when the response carries only word timings:
	// a new segment opens after a silent gap beyond wordGapSeconds or once
	// maxSegmentWords accumulate.
	wordGapSeconds  = 1.5
	maxSegmentWords = 20
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL (e.g., for a compatible proxy).
// Defaults to the public OpenAI endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithModel sets the transcription model identifier. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithHTTPClient replaces the default HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider against an OpenAI-compatible cloud API.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a Provider using the given API key. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openaicloud: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads the audio file and normalizes the verbose response.
// Requests for word timestamps ask the API for both word and segment
// granularities; when only words come back, segments are rebuilt from the
// word stream.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	info, err := os.Stat(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("openaicloud: stat audio file: %w", err)
	}
	if info.Size() > maxUploadBytes {
		return nil, fmt.Errorf("openaicloud: %s is %d bytes: %w", req.AudioPath, info.Size(), stt.ErrAudioTooLarge)
	}

	body, contentType, err := p.buildForm(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, fmt.Errorf("openaicloud: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openaicloud: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("openaicloud: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openaicloud: server returned HTTP %d: %s", resp.StatusCode, snippet(data))
	}

	var vr verboseResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("openaicloud: parse JSON response: %w", err)
	}
	return normalize(&vr), nil
}

// buildForm assembles the multipart request body.
func (p *Provider) buildForm(req stt.Request) (*bytes.Buffer, string, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("openaicloud: open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, "", fmt.Errorf("openaicloud: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("openaicloud: copy audio data: %w", err)
	}

	fields := map[string]string{
		"model":           p.model,
		"response_format": "verbose_json",
	}
	if req.Language != "" {
		fields["language"] = req.Language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("openaicloud: write %s field: %w", k, err)
		}
	}
	if req.WordTimestamps {
		for _, g := range []string{"word", "segment"} {
			if err := mw.WriteField("timestamp_granularities[]", g); err != nil {
				return nil, "", fmt.Errorf("openaicloud: write granularity field: %w", err)
			}
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("openaicloud: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

// ---- response normalization ----

type verboseResponse struct {
	Language string       `json:"language"`
	Duration float64      `json:"duration"`
	Text     string       `json:"text"`
	Words    []apiWord    `json:"words"`
	Segments []apiSegment `json:"segments"`
}

type apiWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type apiSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// normalize converts the API response into an stt.Result. API-provided
// segments win; if only words came back they are regrouped into segments.
func normalize(vr *verboseResponse) *stt.Result {
	res := &stt.Result{Language: vr.Language}

	switch {
	case len(vr.Segments) > 0:
		res.Segments = make([]stt.Segment, 0, len(vr.Segments))
		for _, s := range vr.Segments {
			text := strings.TrimSpace(s.Text)
			if text == "" {
				continue
			}
			res.Segments = append(res.Segments, stt.Segment{
				Start: s.Start,
				End:   s.End,
				Text:  text,
			})
		}
		attachWords(res.Segments, vr.Words)
	case len(vr.Words) > 0:
		res.Segments = groupWords(vr.Words)
	case strings.TrimSpace(vr.Text) != "":
		// Plain response: one segment spanning the whole file.
		res.Segments = []stt.Segment{{
			Start: 0,
			End:   vr.Duration,
			Text:  strings.TrimSpace(vr.Text),
		}}
	}
	return res
}

// attachWords distributes word timings to the segments that contain them,
// matching on word start time.
func attachWords(segs []stt.Segment, words []apiWord) {
	if len(words) == 0 {
		return
	}
	w := 0
	for i := range segs {
		for w < len(words) && words[w].Start < segs[i].End {
			if words[w].Start >= segs[i].Start {
				segs[i].Words = append(segs[i].Words, stt.Word{
					Text:  strings.TrimSpace(words[w].Word),
					Start: words[w].Start,
					End:   words[w].End,
				})
			}
			w++
		}
	}
}

// groupWords rebuilds segments from a bare word stream: a segment closes
// after a silent gap beyond wordGapSeconds or at maxSegmentWords words.
func groupWords(words []apiWord) []stt.Segment {
	var (
		segs  []stt.Segment
		texts []string
		cur   stt.Segment
	)

	flush := func() {
		if len(texts) == 0 {
			return
		}
		cur.Text = strings.Join(texts, " ")
		segs = append(segs, cur)
		texts = nil
	}

	for _, w := range words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		if len(texts) > 0 && (w.Start-cur.End > wordGapSeconds || len(texts) >= maxSegmentWords) {
			flush()
		}
		if len(texts) == 0 {
			cur = stt.Segment{Start: w.Start}
		}
		cur.End = w.End
		cur.Words = append(cur.Words, stt.Word{Text: text, Start: w.Start, End: w.End})
		texts = append(texts, text)
	}
	flush()
	return segs
}

// snippet trims a response body for error messages.
func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
