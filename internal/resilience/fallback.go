package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/rehearse/internal/observe"
	"github.com/MrWong99/rehearse/pkg/types"
)

var (
	// ErrAllFailed is wrapped by a [DegradedError] when every candidate failed.
	ErrAllFailed = errors.New("all candidates failed")

	// ErrNoCandidates is wrapped by a [DegradedError] when the category had no
	// candidates to try, including when the catalogue is unavailable.
	ErrNoCandidates = errors.New("no candidates available")
)

// RetryMessage is passed to the onRetry callback of [Execute]. It is shown to
// users and therefore never mentions models or provider errors.
const RetryMessage = "Taking a little longer than usual, trying another option."

// defaultFriendly holds the user-facing exhaustion messages per category.
var defaultFriendly = map[types.Category]string{
	types.CategorySTT:  "We couldn't process your answer just now. Please try recording it again.",
	types.CategoryTTS:  "The interviewer's voice is unavailable right now, so your device's built-in voice will be used.",
	types.CategoryChat: "The interviewer is having trouble responding. Please try again in a moment.",
}

// FriendlyMessage returns the default user-facing exhaustion message for cat.
func FriendlyMessage(cat types.Category) string {
	if msg, ok := defaultFriendly[cat]; ok {
		return msg
	}
	return "Something went wrong. Please try again."
}

// Attempt records one candidate tried during a single [Execute] call.
type Attempt struct {
	Model     string
	Succeeded bool
	Err       error
	Latency   time.Duration
}

// Result is the outcome of a successful [Execute] call.
type Result[T any] struct {
	Data T

	// Model is the candidate that served the request.
	Model string

	// WasDegraded is true when Model was not the top-ranked candidate.
	WasDegraded bool

	// Attempts lists every candidate tried, in order, including the winner.
	Attempts []Attempt
}

// DegradedError reports that no candidate of a category could serve a
// request. Error returns technical detail for logs; FriendlyMessage is the
// only text that may be shown to users.
type DegradedError struct {
	Category        types.Category
	FriendlyMessage string
	Attempts        []Attempt

	// Cause is the last technical error observed.
	Cause error

	kind error
}

// Error implements error.
func (e *DegradedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("resilience: %s: %v after %d attempts", e.Category, e.kind, len(e.Attempts))
	}
	return fmt.Sprintf("resilience: %s: %v after %d attempts: %v", e.Category, e.kind, len(e.Attempts), e.Cause)
}

// Unwrap exposes both the kind ([ErrAllFailed] or [ErrNoCandidates]) and the
// cause to [errors.Is] and [errors.As].
func (e *DegradedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.Cause}
}

// CandidateSource yields the ranked candidate models for a category. It is
// satisfied by the model catalogue cache.
type CandidateSource interface {
	Candidates(ctx context.Context, cat types.Category) ([]string, error)
}

// ExecutorConfig configures an [Executor].
type ExecutorConfig struct {
	// CircuitBreaker is the template for the per-model breakers. Name is
	// filled in per model.
	CircuitBreaker CircuitBreakerConfig

	// FriendlyMessages overrides the default exhaustion messages.
	FriendlyMessages map[types.Category]string

	// Metrics records attempts and outcomes. Default: [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger receives attempt failures. Default: [slog.Default].
	Logger *slog.Logger
}

// Executor is the Fallback Executor. One instance is shared by all sessions
// so that circuit breaker state is process-wide. It is safe for concurrent
// use.
type Executor struct {
	source   CandidateSource
	cfg      ExecutorConfig
	metrics  *observe.Metrics
	log      *slog.Logger
	friendly map[types.Category]string

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewExecutor creates an Executor reading candidates from src.
func NewExecutor(src CandidateSource, cfg ExecutorConfig) *Executor {
	e := &Executor{
		source:   src,
		cfg:      cfg,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		friendly: make(map[types.Category]string, len(defaultFriendly)),
		breakers: make(map[string]*CircuitBreaker),
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	for cat, msg := range defaultFriendly {
		e.friendly[cat] = msg
	}
	for cat, msg := range cfg.FriendlyMessages {
		if msg != "" {
			e.friendly[cat] = msg
		}
	}
	return e
}

// Breaker returns the circuit breaker for model within cat, creating it on
// first use.
func (e *Executor) Breaker(cat types.Category, model string) *CircuitBreaker {
	key := string(cat) + "/" + model
	e.mu.Lock()
	defer e.mu.Unlock()
	cb, ok := e.breakers[key]
	if !ok {
		cbCfg := e.cfg.CircuitBreaker
		cbCfg.Name = key
		cb = NewCircuitBreaker(cbCfg)
		e.breakers[key] = cb
	}
	return cb
}

func (e *Executor) degraded(cat types.Category, kind error, attempts []Attempt, cause error) *DegradedError {
	return &DegradedError{
		Category:        cat,
		FriendlyMessage: e.friendly[cat],
		Attempts:        attempts,
		Cause:           cause,
		kind:            kind,
	}
}

// Execute runs op against the ranked candidates of cat, one attempt each, in
// rank order, until one succeeds. Models whose circuit breaker is open are
// recorded as failed attempts with [ErrCircuitOpen] and skipped.
//
// After each failed attempt that is followed by another candidate, onRetry
// (if non-nil) receives [RetryMessage] and the 1-based number of the attempt
// about to start.
//
// On success the [Result] reports the serving model and whether it was
// degraded. Otherwise the error is a *[DegradedError]. Execute stops early
// when ctx is done.
//
// This is a package-level function because Go does not support method-level
// type parameters.
func Execute[T any](
	ctx context.Context,
	e *Executor,
	cat types.Category,
	op func(ctx context.Context, model string) (T, error),
	onRetry func(msg string, attempt int),
) (Result[T], error) {
	var zero Result[T]
	log := observe.Logger(ctx).With("category", string(cat))

	candidates, err := e.source.Candidates(ctx, cat)
	if err != nil {
		log.Warn("fallback: candidates unavailable", "err", err)
		e.metrics.RecordFallback(ctx, string(cat), observe.OutcomeExhausted)
		return zero, e.degraded(cat, ErrNoCandidates, nil, err)
	}
	if len(candidates) == 0 {
		e.metrics.RecordFallback(ctx, string(cat), observe.OutcomeExhausted)
		return zero, e.degraded(cat, ErrNoCandidates, nil, nil)
	}

	attempts := make([]Attempt, 0, len(candidates))
	var lastErr error
	for i, model := range candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = ctxErr
			break
		}
		if i > 0 && onRetry != nil {
			onRetry(RetryMessage, i+1)
		}

		var data T
		start := time.Now()
		actx, span := observe.StartAttemptSpan(ctx, string(cat), model)
		err := e.Breaker(cat, model).Execute(func() error {
			var opErr error
			data, opErr = op(actx, model)
			return opErr
		})
		latency := time.Since(start)
		observe.EndSpan(span, err)

		if !errors.Is(err, ErrCircuitOpen) {
			e.metrics.RecordProviderAttempt(ctx, string(cat), model, latency.Seconds(), err)
		}
		attempts = append(attempts, Attempt{Model: model, Succeeded: err == nil, Err: err, Latency: latency})

		if err == nil {
			outcome := observe.OutcomeServed
			if i > 0 {
				outcome = observe.OutcomeDegraded
				log.Info("fallback: served by lower-ranked model",
					"model", model, "rank", i+1, "attempts", len(attempts))
			}
			e.metrics.RecordFallback(ctx, string(cat), outcome)
			return Result[T]{Data: data, Model: model, WasDegraded: i > 0, Attempts: attempts}, nil
		}

		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			log.Debug("fallback: skipping model (circuit open)", "model", model)
		} else {
			log.Warn("fallback: attempt failed", "model", model, "attempt", i+1, "err", err)
		}
	}

	e.metrics.RecordFallback(ctx, string(cat), observe.OutcomeExhausted)
	log.Error("fallback: all candidates failed", "attempts", len(attempts), "err", lastErr)
	return zero, e.degraded(cat, ErrAllFailed, attempts, lastErr)
}
