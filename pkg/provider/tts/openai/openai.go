// Package openai provides a TTS provider backed by the OpenAI audio speech
// API (tts-1).
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/resonate/pkg/provider/tts"
)

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultModel  = "tts-1"
	defaultVoice  = "alloy"
	defaultFormat = "mp3"
)

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	model   string
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the speech model (default "tts-1").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the default OpenAI API base URL. Primarily used in
// tests to point at a local mock server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new OpenAI speech Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	if req.Text == "" {
		return tts.Result{}, fmt.Errorf("openai tts: empty text")
	}

	voice := req.Voice
	if voice == "" {
		voice = defaultVoice
	}
	format := req.Format
	if format == "" {
		format = defaultFormat
	}

	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		Input:          req.Text,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(format),
	}
	if req.Speed > 0 {
		params.Speed = param.NewOpt(req.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return tts.Result{}, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Result{}, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(audio) == 0 {
		return tts.Result{}, fmt.Errorf("openai tts: empty audio response")
	}

	return tts.Result{Audio: audio, Format: format}, nil
}
