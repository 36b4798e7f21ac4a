// Package cache keeps recent marketplace results in memory and persists them
// to a durable store in batches.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"price-aggregator/metrics"
	"price-aggregator/models"
	"price-aggregator/utils"
)

// SchemaVersion is the version of the persisted cache document.
const SchemaVersion = 1

const (
	DefaultTTL        = 24 * time.Hour
	DefaultFlushEvery = 10
)

// ErrSchemaVersion is returned by stores holding data of another version.
var ErrSchemaVersion = errors.New("cache: unsupported schema version")

// Entry is one cached result set.
type Entry struct {
	Value     []models.Listing `json:"value"`
	Timestamp time.Time        `json:"timestamp"`
}

// Store persists the entries of one cache.
type Store interface {
	Load(ctx context.Context) (map[string]Entry, error)
	Save(ctx context.Context, entries map[string]Entry) error
	Close() error
}

// Options tune a Cache. Zero values fall back to the defaults.
type Options struct {
	TTL        time.Duration
	FlushEvery int
	Now        func() time.Time
	Metrics    *metrics.Metrics
}

// Cache is a per-adapter result cache. Reads run concurrently; writes to
// the durable store are serialized. A nil *Cache behaves as an always-empty
// cache.
type Cache struct {
	name       string
	store      Store
	ttl        time.Duration
	flushEvery int
	now        func() time.Time
	logger     *utils.Logger
	metrics    *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]Entry
	writes  int

	flushMu sync.Mutex
}

// New creates the cache for adapter name and loads whatever store holds,
// discarding expired entries. A nil store keeps the cache in memory only and
// a nil logger discards output.
// Load failures are logged and leave the cache empty.
func New(ctx context.Context, name string, store Store, opts Options, logger *utils.Logger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = DefaultFlushEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	c := &Cache{
		name:       name,
		store:      store,
		ttl:        opts.TTL,
		flushEvery: opts.FlushEvery,
		now:        opts.Now,
		logger:     logger,
		metrics:    opts.Metrics,
		entries:    make(map[string]Entry),
	}
	c.load(ctx)
	return c
}

func (c *Cache) load(ctx context.Context) {
	if c.store == nil {
		return
	}
	loaded, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("[cache:%s] Load failed, starting empty: %v", c.name, err)
		return
	}

	now := c.now()
	dropped := 0
	for key, e := range loaded {
		if now.Sub(e.Timestamp) > c.ttl {
			dropped++
			continue
		}
		c.entries[key] = e
	}
	c.logger.Debug("[cache:%s] Loaded %d entries (%d expired)", c.name, len(c.entries), dropped)
}

// Key is the cache key for query.
func Key(query string) string {
	return models.NormalizeQuery(query)
}

// Name returns the adapter the cache belongs to.
func (c *Cache) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Get returns the cached listings for query if present and younger than the TTL.
func (c *Cache) Get(query string) ([]models.Listing, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.entries[Key(query)]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.Timestamp) > c.ttl {
		return nil, false
	}
	return append([]models.Listing(nil), e.Value...), true
}

// Put stores value for query. Every FlushEvery-th write flushes the cache to
// its store; flush errors are logged.
func (c *Cache) Put(ctx context.Context, query string, value []models.Listing) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[Key(query)] = Entry{
		Value:     append([]models.Listing(nil), value...),
		Timestamp: c.now(),
	}
	c.writes++
	due := c.writes%c.flushEvery == 0
	c.mu.Unlock()

	if due {
		_ = c.Flush(ctx)
	}
}

// Flush writes a snapshot of every entry to the store.
func (c *Cache) Flush(ctx context.Context) error {
	if c == nil || c.store == nil {
		return nil
	}
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.RLock()
	snapshot := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	err := c.store.Save(ctx, snapshot)
	c.metrics.ObserveFlush(c.name, err == nil)
	if err != nil {
		c.logger.Warn("[cache:%s] Flush failed: %v", c.name, err)
		return err
	}
	c.logger.Debug("[cache:%s] Flushed %d entries", c.name, len(snapshot))
	return nil
}

// Prune drops expired entries and returns how many were removed.
func (c *Cache) Prune() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.Timestamp) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Clear drops every entry and persists the empty cache.
func (c *Cache) Clear(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
	return c.Flush(ctx)
}

// Len returns the number of entries held, expired ones included.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close flushes outstanding writes and closes the store.
func (c *Cache) Close(ctx context.Context) error {
	if c == nil || c.store == nil {
		return nil
	}
	flushErr := c.Flush(ctx)
	if err := c.store.Close(); err != nil {
		return err
	}
	return flushErr
}
