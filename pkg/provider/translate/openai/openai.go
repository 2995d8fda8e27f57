// Package openai provides a generative translation provider backed by the
// OpenAI Chat Completions API.
//
// A whole batch travels in one prompt using the numbered enumeration
// protocol from the translate package, which keeps per-segment alignment
// without a structured-output dependency and works against any Chat
// Completions compatible endpoint (use WithBaseURL for gateways or local
// servers).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/redub/pkg/provider/translate"
)

const (
	// defaultModel balances quality and cost for batch subtitle
	// translation.
	defaultModel = "gpt-4o-mini"

	// defaultTemperature keeps translations close to the source rather
	// than creative.
	defaultTemperature = 0.3

	// maxCompletionTokens bounds one batch response. A batch of twenty
	// segment texts stays well below this even in verbose languages.
	maxCompletionTokens = 4096
)

// Provider implements translate.Provider using the OpenAI API.
type Provider struct {
	client      oai.Client
	model       string
	temperature float64
}

// config holds optional configuration for the provider.
type config struct {
	model       string
	baseURL     string
	temperature float64
	timeout     time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the default chat model.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTemperature overrides the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = t
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI translation Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{
		model:       defaultModel,
		temperature: defaultTemperature,
		timeout:     120 * time.Second,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// The pipeline schedules its own per-batch retries.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:      oai.NewClient(reqOpts...),
		model:       cfg.model,
		temperature: cfg.temperature,
	}, nil
}

// Compile-time interface assertion.
var _ translate.Provider = (*Provider)(nil)

// TranslateBatch implements translate.Provider.
func (p *Provider) TranslateBatch(ctx context.Context, batch translate.Batch) ([]string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(translate.SystemPrompt(batch)),
			oai.UserMessage(translate.FormatNumbered(batch.Lines)),
		},
		Temperature:         param.NewOpt(p.temperature),
		MaxCompletionTokens: param.NewOpt(int64(maxCompletionTokens)),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", statusErr(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	lines, err := translate.ParseNumbered(resp.Choices[0].Message.Content, len(batch.Lines))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return lines, nil
}

// statusErr converts SDK API errors into translate.StatusError so callers
// can classify rate limits and server errors. Other errors pass through
// unchanged.
func statusErr(err error) error {
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		return &translate.StatusError{StatusCode: apierr.StatusCode, Body: apierr.Message}
	}
	return err
}
