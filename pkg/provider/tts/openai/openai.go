// Package openai provides a TTS provider backed by the OpenAI speech API or
// any OpenAI-compatible endpoint.
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

	"github.com/MrWong99/rehearse/pkg/provider/tts"
)

// maxAudioBytes bounds the response body read from the provider.
const maxAudioBytes = 32 << 20

// Provider implements tts.Provider using the OpenAI speech API.
type Provider struct {
	client oai.Client
	voice  string
}

type config struct {
	baseURL string
	timeout time.Duration
	voice   string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithDefaultVoice sets the voice used when a request does not name one.
func WithDefaultVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// New constructs a new TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}
	cfg := &config{voice: "alloy"}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{client: oai.NewClient(reqOpts...), voice: cfg.voice}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	params, format, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai tts: build params: %w", err)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("openai tts: read body: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("openai tts: empty audio response")
	}
	return &tts.Speech{Audio: audio, Format: format}, nil
}

func (p *Provider) buildParams(req tts.Request) (oai.AudioSpeechNewParams, tts.Format, error) {
	if req.Model == "" {
		return oai.AudioSpeechNewParams{}, "", fmt.Errorf("model must not be empty")
	}
	if req.Text == "" {
		return oai.AudioSpeechNewParams{}, "", fmt.Errorf("text must not be empty")
	}
	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}
	format := req.Format
	if format == "" {
		format = tts.FormatMP3
	}

	params := oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(req.Model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(format),
	}
	if req.Speed > 0 {
		params.Speed = param.NewOpt(req.Speed)
	}
	return params, format, nil
}
