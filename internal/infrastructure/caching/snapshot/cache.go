// Package snapshot provides a per-query TTL cache with dirty flags over a
// remote fetch callback.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a clean entry is served without refetching.
const DefaultTTL = 60 * time.Second

// Query is a structural cache key built from filter, sort and range parameters.
type Query interface {
	CacheKey() string
}

// FetchFunc loads a fresh value for a query.
type FetchFunc[Q Query, V any] func(ctx context.Context, q Q) (V, error)

// Entry is a copy of one cached value, safe to hand out.
type Entry[Q Query, V any] struct {
	Key       string
	Query     Q
	Value     V
	FetchedAt time.Time
	Dirty     bool
	HasValue  bool
}

type entry[Q Query, V any] struct {
	query      Q
	value      V
	fetchedAt  time.Time
	hasValue   bool
	dirty      bool
	dirtyGen   uint64
	appliedSeq uint64
}

// Stats summarizes cache activity.
type Stats struct {
	Name      string `json:"name"`
	Entries   int    `json:"entries"`
	Dirty     int    `json:"dirty"`
	Fetches   uint64 `json:"fetches"`
	Failures  uint64 `json:"failures"`
	Discarded uint64 `json:"discarded"`
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	ttl    time.Duration
	now    func() time.Time
	logger *logging.ChanneledLogger
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger attaches the channeled logger.
func WithLogger(logger *logging.ChanneledLogger) Option {
	return func(o *options) { o.logger = logger }
}

// GetOption tunes a single Get call.
type GetOption func(*getOptions)

type getOptions struct {
	force bool
}

// Force bypasses the TTL and dirty checks.
func Force() GetOption {
	return func(o *getOptions) { o.force = true }
}

// Cache holds one independent entry per distinct query key. Entries are never
// merged and never evicted.
type Cache[Q Query, V any] struct {
	name    string
	fetch   FetchFunc[Q, V]
	ttl     time.Duration
	now     func() time.Time
	logger  *logging.ChanneledLogger
	onStore func(Entry[Q, V])

	mu        sync.Mutex
	entries   map[string]*entry[Q, V]
	seq       uint64
	fetches   uint64
	failures  uint64
	discarded uint64

	group singleflight.Group
}

// New creates a cache named for logging and persistence.
func New[Q Query, V any](name string, fetch FetchFunc[Q, V], opts ...Option) *Cache[Q, V] {
	o := options{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewDiscardLogger()
	}
	return &Cache[Q, V]{
		name:    name,
		fetch:   fetch,
		ttl:     o.ttl,
		now:     o.now,
		logger:  o.logger,
		entries: make(map[string]*entry[Q, V]),
	}
}

// Name identifies the cache.
func (c *Cache[Q, V]) Name() string { return c.name }

// TTL is the freshness window of clean entries.
func (c *Cache[Q, V]) TTL() time.Duration { return c.ttl }

// OnStore registers a hook called after every applied fetch.
func (c *Cache[Q, V]) OnStore(fn func(Entry[Q, V])) {
	c.mu.Lock()
	c.onStore = fn
	c.mu.Unlock()
}

// Get returns the cached value when it is clean and younger than the TTL,
// otherwise fetches, stores and returns a fresh one. Concurrent callers for the
// same key share one in-flight fetch. A failed fetch leaves the stored entry
// untouched and returns the error.
func (c *Cache[Q, V]) Get(ctx context.Context, q Q, opts ...GetOption) (V, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	key := q.CacheKey()
	start := c.now()

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.hasValue && !o.force && !e.dirty && start.Sub(e.fetchedAt) < c.ttl {
		value := e.value
		c.mu.Unlock()
		c.logger.LogCacheOperation(c.name, "get", key, true, c.now().Sub(start))
		return value, nil
	}
	if !ok {
		e = &entry[Q, V]{query: q}
		c.entries[key] = e
	}
	flightKey := fmt.Sprintf("%s#%d", key, e.dirtyGen)
	c.mu.Unlock()

	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		return c.load(context.WithoutCancel(ctx), key, q)
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		c.logger.LogCacheOperation(c.name, "get", key, false, c.now().Sub(start))
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// load runs one fetch and applies it unless a newer fetch already landed.
func (c *Cache[Q, V]) load(ctx context.Context, key string, q Q) (V, error) {
	c.mu.Lock()
	c.seq++
	c.fetches++
	seq := c.seq
	gen := c.entries[key].dirtyGen
	c.mu.Unlock()

	value, err := c.fetch(ctx, q)
	if err != nil {
		c.mu.Lock()
		c.failures++
		c.mu.Unlock()
		c.logger.Cache().Warn("Snapshot fetch failed, keeping previous entry",
			slog.String("cache", c.name),
			slog.String("key", key),
			slog.String("error", err.Error()))
		var zero V
		return zero, err
	}

	c.mu.Lock()
	e := c.entries[key]
	applied := false
	if seq > e.appliedSeq {
		e.query = q
		e.value = value
		e.fetchedAt = c.now()
		e.hasValue = true
		e.appliedSeq = seq
		// an invalidation that arrived mid-flight still needs a fetch
		e.dirty = e.dirtyGen != gen
		applied = true
	} else {
		c.discarded++
	}
	current := e.value
	snapshot := c.copyEntry(key, e)
	hook := c.onStore
	c.mu.Unlock()

	if !applied {
		c.logger.Cache().Debug("Discarded stale snapshot response",
			slog.String("cache", c.name),
			slog.String("key", key),
			slog.Uint64("seq", seq))
	} else if hook != nil {
		hook(snapshot)
	}
	return current, nil
}

// MarkDirty flags the entry for q so the next Get refetches regardless of TTL.
// It reports whether an entry existed.
func (c *Cache[Q, V]) MarkDirty(q Q) bool {
	key := q.CacheKey()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.dirty = true
	e.dirtyGen++
	return true
}

// MarkAllDirty flags every entry and returns how many were flagged.
func (c *Cache[Q, V]) MarkAllDirty() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		e.dirty = true
		e.dirtyGen++
	}
	return len(c.entries)
}

// Seed installs a previously persisted value. Seeded entries start dirty so
// they are served immediately but replaced by the first refresh. An existing
// entry is never overwritten.
func (c *Cache[Q, V]) Seed(q Q, value V, fetchedAt time.Time) bool {
	key := q.CacheKey()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		return false
	}
	c.entries[key] = &entry[Q, V]{
		query:     q,
		value:     value,
		fetchedAt: fetchedAt,
		hasValue:  true,
		dirty:     true,
		dirtyGen:  1,
	}
	return true
}

// Peek returns the stored entry for q without fetching.
func (c *Cache[Q, V]) Peek(q Q) (Entry[Q, V], bool) {
	key := q.CacheKey()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry[Q, V]{}, false
	}
	return c.copyEntry(key, e), true
}

// Keys lists every registered query key in sorted order.
func (c *Cache[Q, V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StaleKeys lists entries that are dirty, empty, or older than the TTL.
func (c *Cache[Q, V]) StaleKeys() []string {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []string
	for k, e := range c.entries {
		if !e.hasValue || e.dirty || now.Sub(e.fetchedAt) >= c.ttl {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// DirtyKeys lists entries flagged dirty.
func (c *Cache[Q, V]) DirtyKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []string
	for k, e := range c.entries {
		if e.dirty || !e.hasValue {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Refresh force-fetches the entry registered under key.
func (c *Cache[Q, V]) Refresh(ctx context.Context, key string) error {
	c.mu.Lock()
	e, ok := c.entries[key]
	var q Q
	if ok {
		q = e.query
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("snapshot %s: unknown key %q", c.name, key)
	}
	_, err := c.Get(ctx, q, Force())
	return err
}

// Stats reports entry counts and fetch counters.
func (c *Cache[Q, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Name:      c.name,
		Entries:   len(c.entries),
		Fetches:   c.fetches,
		Failures:  c.failures,
		Discarded: c.discarded,
	}
	for _, e := range c.entries {
		if e.dirty {
			s.Dirty++
		}
	}
	return s
}

func (c *Cache[Q, V]) copyEntry(key string, e *entry[Q, V]) Entry[Q, V] {
	return Entry[Q, V]{
		Key:       key,
		Query:     e.query,
		Value:     e.value,
		FetchedAt: e.fetchedAt,
		Dirty:     e.dirty,
		HasValue:  e.hasValue,
	}
}
