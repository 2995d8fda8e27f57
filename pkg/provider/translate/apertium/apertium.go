// Package apertium provides a translation provider backed by an Apertium
// APy server.
//
// Apertium is rule-based machine translation: deterministic, fast, free to
// self-host, and with no prompt to drift. It serves as the pipeline's
// primary translation backend, with a generative provider as fallback for
// language pairs Apertium does not cover. Each line of a batch is
// translated with its own /translate call because APy has no batch
// endpoint.
//
// Usage:
//
//	p := apertium.New(apertium.WithBaseURL("http://localhost:2737"))
//	out, err := p.TranslateBatch(ctx, translate.Batch{
//	    Lines:      []string{"Hello world"},
//	    SourceLang: "en",
//	    TargetLang: "es",
//	})
package apertium

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/redub/pkg/provider/translate"
)

// defaultBaseURL is the public APy instance operated by the Apertium
// project. Self-hosted deployments override it with WithBaseURL.
const defaultBaseURL = "https://apertium.org/apy"

// Provider implements translate.Provider against an Apertium APy server.
type Provider struct {
	baseURL string
	client  *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBaseURL overrides the default APy server URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the HTTP client, e.g. to change the timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// New creates an APy-backed translation provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Compile-time interface assertion.
var _ translate.Provider = (*Provider)(nil)

// apyResponse is the JSON shape of a successful /translate call.
type apyResponse struct {
	ResponseData struct {
		TranslatedText string `json:"translatedText"`
	} `json:"responseData"`
	ResponseStatus int `json:"responseStatus"`
}

// TranslateBatch implements translate.Provider. Lines are translated one
// by one; the first failing line fails the whole batch.
func (p *Provider) TranslateBatch(ctx context.Context, batch translate.Batch) ([]string, error) {
	if batch.SourceLang == "" || batch.TargetLang == "" {
		return nil, fmt.Errorf("apertium: source and target language must be set")
	}

	langpair := batch.SourceLang + "|" + batch.TargetLang
	out := make([]string, len(batch.Lines))
	for i, line := range batch.Lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		translated, err := p.translateOne(ctx, line, langpair)
		if err != nil {
			return nil, fmt.Errorf("apertium: line %d: %w", i+1, err)
		}
		out[i] = translated
	}
	return out, nil
}

// translateOne performs a single /translate call. markUnknown is disabled
// so words missing from the pair's dictionaries come back without the
// leading "*" Apertium adds by default.
func (p *Provider) translateOne(ctx context.Context, text, langpair string) (string, error) {
	query := url.Values{}
	query.Set("q", text)
	query.Set("langpair", langpair)
	query.Set("markUnknown", "no")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/translate?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", p.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &translate.StatusError{StatusCode: resp.StatusCode, Body: snippet(data)}
	}

	var parsed apyResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(parsed.ResponseData.TranslatedText), nil
}

// snippet shortens a response body for error messages.
func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
