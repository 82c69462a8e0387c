// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    Result:      &tts.Speech{Audio: []byte("mp3"), Format: tts.FormatMP3},
//	    ModelErrors: map[string]error{"playai-tts": errors.New("429")},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/rehearse/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by successful calls. When nil a one-byte MP3 stub is
	// returned so callers always receive audio.
	Result *tts.Speech

	// Err, if non-nil, is returned from every call.
	Err error

	// ModelErrors maps a model id to the error returned for it.
	ModelErrors map[string]error

	// Calls records every invocation in order.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns Result or the configured error.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if err, ok := p.ModelErrors[req.Model]; ok && err != nil {
		return nil, err
	}
	if p.Result == nil {
		return &tts.Speech{Audio: []byte{0xff}, Format: tts.FormatMP3}, nil
	}
	return p.Result, nil
}

// Texts returns the text of every recorded call in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Req.Text
	}
	return out
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
