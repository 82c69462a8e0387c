package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/rehearse/internal/observe"
	"github.com/MrWong99/rehearse/pkg/types"
)

// staticSource returns fixed candidates per category.
type staticSource struct {
	ids map[types.Category][]string
	err error
}

func (s staticSource) Candidates(_ context.Context, cat types.Category) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return slices.Clone(s.ids[cat]), nil
}

func newTestExecutor(t *testing.T, src CandidateSource, cfg ExecutorConfig) *Executor {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	cfg.Metrics = m
	return NewExecutor(src, cfg)
}

func TestExecute_TopCandidateServes(t *testing.T) {
	e := newTestExecutor(t, staticSource{ids: map[types.Category][]string{
		types.CategoryChat: {"only-chat"},
	}}, ExecutorConfig{})

	res, err := Execute(context.Background(), e, types.CategoryChat,
		func(_ context.Context, model string) (string, error) { return "hello from " + model, nil },
		nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Model != "only-chat" || res.WasDegraded {
		t.Errorf("Model = %q, WasDegraded = %v; want only-chat, false", res.Model, res.WasDegraded)
	}
	if res.Data != "hello from only-chat" {
		t.Errorf("Data = %q", res.Data)
	}
	if len(res.Attempts) != 1 || !res.Attempts[0].Succeeded {
		t.Errorf("Attempts = %+v", res.Attempts)
	}
}

func TestExecute_FallsThroughToLastCandidate(t *testing.T) {
	e := newTestExecutor(t, staticSource{ids: map[types.Category][]string{
		types.CategorySTT: {"A", "B", "C"},
	}}, ExecutorConfig{})

	var tried []string
	var retries []int
	res, err := Execute(context.Background(), e, types.CategorySTT,
		func(_ context.Context, model string) (int, error) {
			tried = append(tried, model)
			if model != "C" {
				return 0, errors.New(model + " timed out")
			}
			return 42, nil
		},
		func(msg string, attempt int) {
			if msg != RetryMessage {
				t.Errorf("onRetry msg = %q", msg)
			}
			retries = append(retries, attempt)
		})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Model != "C" || !res.WasDegraded || res.Data != 42 {
		t.Errorf("result = %+v, want model C degraded", res)
	}
	if !slices.Equal(tried, []string{"A", "B", "C"}) {
		t.Errorf("tried = %v, want [A B C]", tried)
	}
	if !slices.Equal(retries, []int{2, 3}) {
		t.Errorf("onRetry attempts = %v, want [2 3]", retries)
	}
	if len(res.Attempts) != 3 || res.Attempts[0].Model != "A" || res.Attempts[0].Succeeded || res.Attempts[0].Err == nil {
		t.Errorf("Attempts = %+v", res.Attempts)
	}
}

func TestExecute_AllFailReturnsDegradedError(t *testing.T) {
	e := newTestExecutor(t, staticSource{ids: map[types.Category][]string{
		types.CategoryTTS: {"A", "B"},
	}}, ExecutorConfig{})

	lastErr := errors.New("B: 503 service unavailable")
	_, err := Execute(context.Background(), e, types.CategoryTTS,
		func(_ context.Context, model string) ([]byte, error) {
			if model == "A" {
				return nil, errors.New("A: 429")
			}
			return nil, lastErr
		}, nil)

	var de *DegradedError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DegradedError", err)
	}
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, lastErr) {
		t.Errorf("err should wrap ErrAllFailed and the last error: %v", err)
	}
	if de.FriendlyMessage != FriendlyMessage(types.CategoryTTS) {
		t.Errorf("FriendlyMessage = %q", de.FriendlyMessage)
	}
	if de.Category != types.CategoryTTS || len(de.Attempts) != 2 {
		t.Errorf("DegradedError = %+v", de)
	}
}

func TestExecute_NoCandidates(t *testing.T) {
	tests := []struct {
		name string
		src  staticSource
	}{
		{"empty list", staticSource{ids: map[types.Category][]string{}}},
		{"catalog unavailable", staticSource{err: errors.New("catalog: no ranking snapshot available")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(t, tt.src, ExecutorConfig{
				FriendlyMessages: map[types.Category]string{types.CategoryChat: "custom"},
			})
			called := false
			_, err := Execute(context.Background(), e, types.CategoryChat,
				func(context.Context, string) (string, error) { called = true; return "", nil }, nil)

			var de *DegradedError
			if !errors.As(err, &de) {
				t.Fatalf("err = %v, want *DegradedError", err)
			}
			if !errors.Is(err, ErrNoCandidates) {
				t.Errorf("err = %v, want ErrNoCandidates", err)
			}
			if de.FriendlyMessage != "custom" {
				t.Errorf("FriendlyMessage = %q, want custom override", de.FriendlyMessage)
			}
			if called {
				t.Error("op must not run without candidates")
			}
		})
	}
}

func TestExecute_OpenCircuitIsSkipped(t *testing.T) {
	clock := newFakeClock()
	e := newTestExecutor(t, staticSource{ids: map[types.Category][]string{
		types.CategoryChat: {"flaky", "stable"},
	}}, ExecutorConfig{CircuitBreaker: CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Minute,
		Now:          clock.Now,
	}})

	flakyCalls := 0
	op := func(_ context.Context, model string) (string, error) {
		if model == "flaky" {
			flakyCalls++
			return "", errTest
		}
		return "ok", nil
	}

	for range 2 {
		if _, err := Execute(context.Background(), e, types.CategoryChat, op, nil); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	res, err := Execute(context.Background(), e, types.CategoryChat, op, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if flakyCalls != 2 {
		t.Errorf("flaky calls = %d, want 2 (breaker should skip the third)", flakyCalls)
	}
	if !errors.Is(res.Attempts[0].Err, ErrCircuitOpen) {
		t.Errorf("first attempt err = %v, want ErrCircuitOpen", res.Attempts[0].Err)
	}
	if !res.WasDegraded || res.Model != "stable" {
		t.Errorf("result = %+v", res)
	}
	if e.Breaker(types.CategoryChat, "flaky").State() != StateOpen {
		t.Error("flaky breaker should be open")
	}
	// Breakers are per category.
	if e.Breaker(types.CategorySTT, "flaky").State() != StateClosed {
		t.Error("stt/flaky breaker should be independent")
	}
}

func TestExecute_StopsWhenContextDone(t *testing.T) {
	e := newTestExecutor(t, staticSource{ids: map[types.Category][]string{
		types.CategoryChat: {"A", "B"},
	}}, ExecutorConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	var tried []string
	_, err := Execute(ctx, e, types.CategoryChat,
		func(_ context.Context, model string) (string, error) {
			tried = append(tried, model)
			cancel()
			return "", errTest
		}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if !slices.Equal(tried, []string{"A"}) {
		t.Errorf("tried = %v, want [A]", tried)
	}
}

func TestDegradedError_ErrorIsTechnical(t *testing.T) {
	de := &DegradedError{
		Category:        types.CategorySTT,
		FriendlyMessage: FriendlyMessage(types.CategorySTT),
		Cause:           errors.New("groq: 500"),
		kind:            ErrAllFailed,
	}
	if got := de.Error(); got == de.FriendlyMessage {
		t.Error("Error() must carry technical detail, not the friendly message")
	}
}
