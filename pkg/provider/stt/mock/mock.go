// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    Result:      &stt.Transcription{Text: "I built the billing service."},
//	    ModelErrors: map[string]error{"whisper-large-v3": errors.New("503")},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/rehearse/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe. Audio is copied.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by successful Transcribe calls. May be nil.
	Result *stt.Transcription

	// Err, if non-nil, is returned from every call.
	Err error

	// ModelErrors maps a model id to the error returned for it.
	ModelErrors map[string]error

	// Calls records every invocation in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Result or the configured error.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req.Audio = append([]byte(nil), req.Audio...)
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if err, ok := p.ModelErrors[req.Model]; ok && err != nil {
		return nil, err
	}
	return p.Result, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
