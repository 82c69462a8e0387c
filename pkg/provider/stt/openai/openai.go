// Package openai provides an STT provider backed by the OpenAI audio
// transcription API or any OpenAI-compatible endpoint.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/rehearse/pkg/provider/stt"
)

const defaultFilename = "recording.webm"

// Provider implements stt.Provider using the OpenAI transcription API.
type Provider struct {
	client oai.Client
}

type config struct {
	baseURL string
	timeout time.Duration
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

// New constructs a new STT Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	cfg := &config{}
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
	return &Provider{client: oai.NewClient(reqOpts...)}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcription, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("openai stt: model must not be empty")
	}
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("openai stt: audio must not be empty")
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(req.Audio), filename(req), mimeType(req)),
		Model: oai.AudioModel(req.Model),
	}
	if req.Language != "" {
		params.Language = param.NewOpt(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = param.NewOpt(req.Prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return &stt.Transcription{
		Text:     strings.TrimSpace(resp.Text),
		Language: req.Language,
	}, nil
}

func filename(req stt.Request) string {
	if req.Filename != "" {
		return req.Filename
	}
	switch {
	case strings.Contains(req.MIMEType, "wav"):
		return "recording.wav"
	case strings.Contains(req.MIMEType, "mpeg"), strings.Contains(req.MIMEType, "mp3"):
		return "recording.mp3"
	case strings.Contains(req.MIMEType, "ogg"):
		return "recording.ogg"
	case strings.Contains(req.MIMEType, "mp4"), strings.Contains(req.MIMEType, "m4a"):
		return "recording.m4a"
	}
	return defaultFilename
}

func mimeType(req stt.Request) string {
	if req.MIMEType != "" {
		return req.MIMEType
	}
	return "audio/webm"
}
