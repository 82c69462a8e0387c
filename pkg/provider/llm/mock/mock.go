// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that callers send correct
// CompletionRequests and to feed controlled responses without a live backend.
// Per-model errors let tests exercise fallback across ranked models.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "Hello!"},
//	    ModelErrors:      map[string]error{"primary": errors.New("rate limited")},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/rehearse/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete. May be nil (returns nil, nil).
	CompleteResponse *llm.CompletionResponse

	// Responses, if non-empty, are returned in order by successive successful
	// Complete calls; the last entry repeats once exhausted.
	Responses []*llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from every Complete call.
	CompleteErr error

	// ModelErrors maps a model id to the error Complete returns for it.
	ModelErrors map[string]error

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	served int
}

// Complete records the call and returns the configured response or error.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if err, ok := p.ModelErrors[req.Model]; ok && err != nil {
		return nil, err
	}
	if len(p.Responses) > 0 {
		i := min(p.served, len(p.Responses)-1)
		p.served++
		return p.Responses[i], nil
	}
	return p.CompleteResponse, nil
}

// Models returns the model ids of all recorded calls in order.
func (p *Provider) Models() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.CompleteCalls))
	for i, c := range p.CompleteCalls {
		out[i] = c.Req.Model
	}
	return out
}

// CallCount returns the number of Complete calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.served = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
