// Package openai provides a catalog.Source backed by the /models endpoint of
// the OpenAI API or any OpenAI-compatible service.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/MrWong99/rehearse/pkg/provider/catalog"
)

// Source implements catalog.Source using the models listing API.
type Source struct {
	client oai.Client
}

type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Source.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new Source.
func New(apiKey string, opts ...Option) (*Source, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai catalog: apiKey must not be empty")
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Source{client: oai.NewClient(reqOpts...)}, nil
}

// ListModels implements catalog.Source.
func (s *Source) ListModels(ctx context.Context) ([]catalog.RawModel, error) {
	var out []catalog.RawModel
	iter := s.client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		m := iter.Current()
		out = append(out, parseModel(m.ID, m.Created, m.OwnedBy, m.RawJSON()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("openai catalog: list models: %w", err)
	}
	return out, nil
}

// parseModel builds a RawModel from the typed fields plus the extension fields
// some OpenAI-compatible providers add to the raw JSON.
func parseModel(id string, created int64, ownedBy, raw string) catalog.RawModel {
	m := catalog.RawModel{
		ID:      id,
		OwnedBy: ownedBy,
	}
	if created > 0 {
		m.Created = time.Unix(created, 0).UTC()
	}
	if raw == "" {
		return m
	}

	doc := gjson.Parse(raw)
	if v := doc.Get("active"); v.Exists() {
		active := v.Bool()
		m.Active = &active
	}
	if v := doc.Get("context_window"); v.Exists() {
		m.ContextWindow = int(v.Int())
	}
	for _, key := range []string{"max_completion_tokens", "max_output_tokens"} {
		if v := doc.Get(key); v.Exists() && v.Int() > 0 {
			m.MaxOutputTokens = int(v.Int())
			break
		}
	}
	if v := doc.Get("capabilities"); v.IsArray() {
		for _, c := range v.Array() {
			m.Capabilities = append(m.Capabilities, c.String())
		}
	}
	return m
}
