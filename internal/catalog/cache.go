// Package catalog implements the Model Catalog Cache: it lists the models a
// provider exposes, classifies each into capability categories, ranks them,
// and caches the result as an immutable [Snapshot] with a fixed expiry.
//
// Concurrent refreshes are collapsed into one provider fetch. When a fetch
// fails the last good snapshot keeps being served, even past its expiry.
//
// A [Cache] is an ordinary value: construct one per process (or per test)
// with [New].
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/rehearse/internal/observe"
	"github.com/MrWong99/rehearse/pkg/provider/catalog"
	"github.com/MrWong99/rehearse/pkg/types"
)

// ErrNoSnapshot is returned when the catalogue could not be fetched and no
// snapshot has ever been built.
var ErrNoSnapshot = errors.New("catalog: no ranking snapshot available")

const (
	defaultTTL           = 24 * time.Hour
	defaultFetchTimeout  = 15 * time.Second
	defaultRetryInterval = time.Minute
)

// Snapshot is one immutable ranking of the provider's models. Callers must
// not modify it; use [Snapshot.Ranked] to obtain a mutable copy of a list.
type Snapshot struct {
	// ByCategory holds the ranked model ids per category, best first. Every
	// category in [types.Categories] has an entry, possibly empty.
	ByCategory map[types.Category][]string `json:"by_category"`

	// RawModels lists every model the provider reported, sorted by id.
	RawModels []types.ModelDescriptor `json:"raw_models"`

	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Ranked returns a copy of the ranked ids for cat.
func (s *Snapshot) Ranked(cat types.Category) []string {
	return slices.Clone(s.ByCategory[cat])
}

// Expired reports whether the snapshot is past its expiry at now.
func (s *Snapshot) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Cache is the Model Catalog Cache. It is safe for concurrent use.
type Cache struct {
	source        catalog.Source
	classifier    *Classifier
	ranker        *Ranker
	ttl           time.Duration
	fetchTimeout  time.Duration
	retryInterval time.Duration
	now           func() time.Time
	metrics       *observe.Metrics
	log           *slog.Logger

	group singleflight.Group

	mu          sync.RWMutex
	snap        *Snapshot
	lastFailure time.Time
}

// Option configures a [Cache].
type Option func(*Cache)

// WithTTL sets the snapshot lifetime. Default: 24h.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithFetchTimeout bounds one catalogue fetch. Default: 15s.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithRetryInterval sets how long an expired snapshot is served without
// re-fetching after a failed fetch. Default: 1m.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Cache) { c.retryInterval = d }
}

// WithClassifier replaces the default (override-free) classifier.
func WithClassifier(cl *Classifier) Option {
	return func(c *Cache) { c.classifier = cl }
}

// WithPolicy sets the ranking policy.
func WithPolicy(p Policy) Option {
	return func(c *Cache) { c.ranker = NewRanker(p) }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// New creates a Cache reading from src. No fetch happens until the first
// call to [Cache.Rankings] or [Cache.ForceRefresh].
func New(src catalog.Source, opts ...Option) *Cache {
	c := &Cache{
		source:        src,
		classifier:    NewClassifier(nil),
		ranker:        NewRanker(Policy{}),
		ttl:           defaultTTL,
		fetchTimeout:  defaultFetchTimeout,
		retryInterval: defaultRetryInterval,
		now:           time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Rankings returns the cached snapshot while it is unexpired. Otherwise it
// fetches, rebuilds and stores a new one. If the fetch fails and an older
// snapshot exists, the older snapshot is returned with a nil error.
func (c *Cache) Rankings(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	snap, lastFailure := c.snap, c.lastFailure
	c.mu.RUnlock()

	now := c.now()
	if snap != nil && !snap.Expired(now) {
		return snap, nil
	}
	if snap != nil && c.retryInterval > 0 && !lastFailure.IsZero() && now.Sub(lastFailure) < c.retryInterval {
		return snap, nil
	}

	fresh, err := c.refresh(ctx)
	if err == nil {
		return fresh, nil
	}
	if stale := c.Current(); stale != nil {
		c.log.Warn("catalog: serving stale rankings",
			"updated_at", stale.UpdatedAt, "err", err)
		return stale, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoSnapshot, err)
}

// ForceRefresh fetches and rebuilds the snapshot regardless of expiry. On
// failure it returns the previous snapshot (if any) together with the error.
func (c *Cache) ForceRefresh(ctx context.Context) (*Snapshot, error) {
	fresh, err := c.refresh(ctx)
	if err == nil {
		return fresh, nil
	}
	if stale := c.Current(); stale != nil {
		return stale, fmt.Errorf("catalog: force refresh: %w", err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoSnapshot, err)
}

// Candidates returns the ranked model ids for cat.
func (c *Cache) Candidates(ctx context.Context, cat types.Category) ([]string, error) {
	snap, err := c.Rankings(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Ranked(cat), nil
}

// Current returns the stored snapshot without fetching. It may be nil or
// expired.
func (c *Cache) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// refresh runs one shared fetch. The fetch is detached from ctx so that one
// impatient caller cannot fail it for everybody else; ctx only bounds how
// long this caller waits.
func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	ch := c.group.DoChan("refresh", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		start := time.Now()
		raw, err := c.source.ListModels(fctx)
		if err != nil {
			c.metrics.RecordCatalogRefresh(fctx, "error")
			c.mu.Lock()
			c.lastFailure = c.now()
			c.mu.Unlock()
			return nil, fmt.Errorf("catalog: list models: %w", err)
		}

		snap := c.build(raw, c.now())
		c.mu.Lock()
		c.snap = snap
		c.lastFailure = time.Time{}
		c.mu.Unlock()

		c.metrics.RecordCatalogRefresh(fctx, "ok")
		c.log.Info("catalog: rankings rebuilt",
			"models", len(snap.RawModels),
			"stt", len(snap.ByCategory[types.CategorySTT]),
			"tts", len(snap.ByCategory[types.CategoryTTS]),
			"chat", len(snap.ByCategory[types.CategoryChat]),
			"duration", time.Since(start))
		return snap, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("catalog: waiting for refresh: %w", ctx.Err())
	}
}

// build classifies and ranks raw into a new snapshot stamped at now.
func (c *Cache) build(raw []catalog.RawModel, now time.Time) *Snapshot {
	models := make([]types.ModelDescriptor, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		if r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		models = append(models, types.ModelDescriptor{
			ID:              r.ID,
			Categories:      c.classifier.Classify(r),
			Active:          r.IsActive(),
			CreatedAt:       r.Created,
			ContextWindow:   r.ContextWindow,
			MaxOutputTokens: r.MaxOutputTokens,
			OwnedBy:         r.OwnedBy,
		})
	}
	slices.SortFunc(models, func(a, b types.ModelDescriptor) int {
		return strings.Compare(a.ID, b.ID)
	})

	byCat := make(map[types.Category][]string, len(types.Categories))
	for _, cat := range types.Categories {
		byCat[cat] = c.ranker.Rank(cat, models)
	}

	return &Snapshot{
		ByCategory: byCat,
		RawModels:  models,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(c.ttl),
	}
}
