// Package app wires all Rehearse subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until its context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject implementations via functional options (WithStore,
// WithSnapshotStore, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/rehearse/internal/api"
	"github.com/MrWong99/rehearse/internal/capability"
	catcache "github.com/MrWong99/rehearse/internal/catalog"
	"github.com/MrWong99/rehearse/internal/config"
	"github.com/MrWong99/rehearse/internal/health"
	"github.com/MrWong99/rehearse/internal/observe"
	"github.com/MrWong99/rehearse/internal/resilience"
	"github.com/MrWong99/rehearse/internal/snapshot"
	"github.com/MrWong99/rehearse/internal/store"
	"github.com/MrWong99/rehearse/internal/store/postgres"
	"github.com/MrWong99/rehearse/internal/transport"
	"github.com/MrWong99/rehearse/pkg/provider/catalog"
	"github.com/MrWong99/rehearse/pkg/provider/llm"
	"github.com/MrWong99/rehearse/pkg/provider/stt"
	"github.com/MrWong99/rehearse/pkg/provider/tts"
	"github.com/MrWong99/rehearse/pkg/types"
)

const (
	readHeaderTimeout = 10 * time.Second
	warmupTimeout     = 30 * time.Second
)

// connectBackoff retries backing-store connections at startup.
var connectBackoff = resilience.Backoff{Attempts: 5, Initial: time.Second, Max: 8 * time.Second}

// Providers holds the provider implementations. All four are required.
// Populated by main.go via the config registry.
type Providers struct {
	Catalog catalog.Source
	LLM     llm.Provider
	STT     stt.Provider
	TTS     tts.Provider
}

func (p *Providers) validate() error {
	var errs []error
	if p == nil {
		return errors.New("providers are required")
	}
	if p.Catalog == nil {
		errs = append(errs, errors.New("catalog provider is nil"))
	}
	if p.LLM == nil {
		errs = append(errs, errors.New("llm provider is nil"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("stt provider is nil"))
	}
	if p.TTS == nil {
		errs = append(errs, errors.New("tts provider is nil"))
	}
	return errors.Join(errs...)
}

// App owns all subsystem lifetimes and serves the interview API.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger

	metrics        *observe.Metrics
	metricsHandler http.Handler

	// Subsystems, initialised in New and torn down in Shutdown.
	catalog     *catcache.Cache
	exec        *resilience.Executor
	replier     *capability.ReplyGenerator
	transcriber *capability.Transcriber
	synth       *capability.Synthesizer
	snapshots   snapshot.Store
	sessions    store.Store
	ws          *transport.Handler
	checkers    []health.Checker
	handler     http.Handler

	// interview holds the rules for new interviews; see UpdateInterview.
	interview atomic.Pointer[config.InterviewConfig]

	rngMu sync.Mutex
	rng   *rand.Rand

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a session store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.sessions = s }
}

// WithSnapshotStore injects a snapshot store instead of creating one from
// config.
func WithSnapshotStore(s snapshot.Store) Option {
	return func(a *App) { a.snapshots = s }
}

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithRand seeds the random choices of new interviews (seed questions,
// thinking message order).
func WithRand(r *rand.Rand) Option {
	return func(a *App) { a.rng = r }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for the stores.
//
// New performs all initialisation synchronously: catalogue cache, fallback
// executor, capability adapters, snapshot and session stores, and the HTTP
// handlers.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	ic := cfg.Interview
	a.interview.Store(&ic)

	// ── 1. Model catalogue + fallback executor ─────────────────────────
	a.initCatalog()

	// ── 2. Capability adapters ──────────────────────────────────────────
	a.initCapabilities()

	// ── 3. Snapshot store ───────────────────────────────────────────────
	if err := a.initSnapshots(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init snapshots: %w", err)
	}

	// ── 4. Session store ────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 5. HTTP surface ─────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initCatalog() {
	cc := a.cfg.Catalog
	opts := []catcache.Option{
		catcache.WithClassifier(catcache.NewClassifier(cc.Overrides)),
		catcache.WithPolicy(catcache.Policy{Preferred: cc.Preferred, QualityTiers: cc.QualityTiers}),
		catcache.WithMetrics(a.metrics),
		catcache.WithLogger(a.log),
	}
	if cc.TTL > 0 {
		opts = append(opts, catcache.WithTTL(cc.TTL))
	}
	if cc.FetchTimeout > 0 {
		opts = append(opts, catcache.WithFetchTimeout(cc.FetchTimeout))
	}
	if cc.RetryInterval > 0 {
		opts = append(opts, catcache.WithRetryInterval(cc.RetryInterval))
	}
	a.catalog = catcache.New(a.providers.Catalog, opts...)

	fc := a.cfg.Fallback
	a.exec = resilience.NewExecutor(a.catalog, resilience.ExecutorConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  fc.MaxFailures,
			ResetTimeout: fc.ResetTimeout,
			HalfOpenMax:  fc.HalfOpenMax,
		},
		FriendlyMessages: fc.FriendlyMessages,
		Metrics:          a.metrics,
		Logger:           a.log,
	})
}

func (a *App) initCapabilities() {
	pc, ic := a.cfg.Provider, a.cfg.Interview

	var replyOpts []capability.ReplyOption
	if ic.Temperature > 0 {
		replyOpts = append(replyOpts, capability.WithTemperature(ic.Temperature))
	}
	if ic.MaxTokens > 0 {
		replyOpts = append(replyOpts, capability.WithMaxTokens(ic.MaxTokens))
	}
	a.replier = capability.NewReplyGenerator(a.exec, a.providers.LLM, a.newRand(), replyOpts...)

	var sttOpts []capability.TranscriberOption
	if pc.Language != "" {
		sttOpts = append(sttOpts, capability.WithLanguage(pc.Language))
	}
	a.transcriber = capability.NewTranscriber(a.exec, a.providers.STT, sttOpts...)

	var ttsOpts []capability.SynthesizerOption
	if pc.Voice != "" {
		ttsOpts = append(ttsOpts, capability.WithVoice(pc.Voice))
	}
	a.synth = capability.NewSynthesizer(a.exec, a.providers.TTS, ttsOpts...)
}

// initSnapshots sets up the snapshot store or uses the injected one.
func (a *App) initSnapshots(ctx context.Context) error {
	if a.snapshots != nil {
		return nil
	}
	ttl := a.cfg.Interview.SnapshotTTL
	if ttl <= 0 {
		ttl = snapshot.DefaultTTL
	}

	switch a.cfg.Snapshot.Backend {
	case config.BackendRedis:
		rc := a.cfg.Snapshot.Redis
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		a.closers = append(a.closers, client.Close)

		var opts []snapshot.RedisOption
		if rc.KeyPrefix != "" {
			opts = append(opts, snapshot.WithKeyPrefix(rc.KeyPrefix))
		}
		rs := snapshot.NewRedisStore(client, ttl, opts...)
		err := resilience.Retry(ctx, connectBackoff, "redis connect", func(ctx context.Context, _ int) error {
			return rs.Ping(ctx)
		})
		if err != nil {
			return err
		}
		a.snapshots = rs
		a.checkers = append(a.checkers, health.Ping("snapshots", rs))
		a.log.Info("snapshot store connected", "backend", "redis", "addr", rc.Addr)
	default:
		a.snapshots = snapshot.NewMemoryStore(ttl)
		a.log.Info("snapshot store ready", "backend", "memory")
	}
	return nil
}

// initStore sets up the session store or uses the injected one.
func (a *App) initStore(ctx context.Context) error {
	if a.sessions != nil {
		if p, ok := a.sessions.(health.Pinger); ok {
			a.checkers = append(a.checkers, health.Ping("store", p))
		}
		return nil
	}

	switch a.cfg.Store.Backend {
	case config.BackendPostgres:
		var pg *postgres.Store
		err := resilience.Retry(ctx, connectBackoff, "postgres connect", func(ctx context.Context, _ int) error {
			var err error
			pg, err = postgres.NewStore(ctx, a.cfg.Store.PostgresDSN)
			return err
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		a.sessions = pg
		a.checkers = append(a.checkers, health.Ping("store", pg))
		a.log.Info("session store connected", "backend", "postgres")
	default:
		ms := store.NewMemoryStore()
		a.sessions = ms
		a.checkers = append(a.checkers, health.Ping("store", ms))
		a.log.Info("session store ready", "backend", "memory")
	}
	return nil
}

func (a *App) initHTTP() {
	a.checkers = append(a.checkers, health.Checker{
		Name: "catalog",
		Check: func(ctx context.Context) error {
			_, err := a.catalog.Rankings(ctx)
			return err
		},
	})

	ic := a.cfg.Interview
	a.ws = transport.NewHandler(a.sessions, a.newMachine,
		transport.WithOriginPatterns(a.cfg.Server.AllowedOrigins...),
		transport.WithLogger(a.log),
	)
	rest := api.NewHandler(a.sessions, a.catalog,
		api.WithInterviewTypes(ic.DefaultType, apiTypes(ic.Types)),
		api.WithDefaultDifficulty(ic.DefaultDifficulty),
		api.WithLogger(a.log),
	)

	mux := http.NewServeMux()
	rest.Register(mux)
	mux.Handle("GET /v1/interviews/{id}/ws", a.ws)
	health.New(a.checkers...).Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}

	a.handler = observe.Middleware(a.metrics)(api.CORS(a.cfg.Server.AllowedOrigins)(mux))
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Catalog returns the model catalogue cache.
func (a *App) Catalog() *catcache.Cache { return a.catalog }

// Sessions returns the session store.
func (a *App) Sessions() store.Store { return a.sessions }

// ActiveInterviews returns the number of connected interviews.
func (a *App) ActiveInterviews() int { return a.ws.Active() }

// UpdateInterview replaces the rules used for interviews started from now on.
// Running interviews keep their rules. The REST handler keeps the interview
// types it was built with.
func (a *App) UpdateInterview(ic config.InterviewConfig) {
	a.interview.Store(&ic)
	a.log.Info("interview rules updated")
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run warms the model catalogue, then serves HTTP on the configured address
// until ctx is cancelled. In-flight requests get until the server shutdown
// returns; WebSocket interviews are cut and keep their snapshots.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.warmCatalog(ctx)

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}
	srv.RegisterOnShutdown(a.ws.CloseAll)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http server listening", "addr", ln.Addr().String())
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readHeaderTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// warmCatalog builds the first ranking snapshot so the first interview does
// not wait for it. Failure only logs; the cache retries on demand.
func (a *App) warmCatalog(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()
	snap, err := a.catalog.Rankings(ctx)
	if err != nil {
		a.log.Warn("model catalogue unavailable at startup", "err", err)
		return
	}
	for _, cat := range types.Categories {
		ranked := snap.Ranked(cat)
		if len(ranked) == 0 {
			a.log.Warn("no models available", "category", cat)
			continue
		}
		a.log.Info("model ranking", "category", cat, "best", ranked[0], "candidates", len(ranked))
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// newRand derives an independent generator from the app's source.
func (a *App) newRand() *rand.Rand {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return rand.New(rand.NewPCG(a.rng.Uint64(), a.rng.Uint64()))
}

func apiTypes(t map[string]config.InterviewType) map[string]api.InterviewType {
	out := make(map[string]api.InterviewType, len(t))
	for name, it := range t {
		out[name] = api.InterviewType{ExpectedQuestions: it.ExpectedQuestions}
	}
	return out
}
