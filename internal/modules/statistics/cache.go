package statistics

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/quanport/internal/domain"
)

const (
	// DefaultTTL is how long statistics for a symbol set stay fresh
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntries caps the number of cached symbol sets
	DefaultMaxEntries = 256

	// DefaultLoadTimeout bounds a shared load-and-build, independent of any caller
	DefaultLoadTimeout = 30 * time.Second
)

// PriceSource loads aligned price histories for a set of symbols.
// Implemented by marketdata.Provider.
type PriceSource interface {
	LoadAssets(ctx context.Context, symbols []string) ([]domain.Asset, error)
}

// CacheConfig configures a Cache
type CacheConfig struct {
	TTL         time.Duration
	MaxEntries  int
	LoadTimeout time.Duration
	Clock       Clock
}

type cacheEntry struct {
	key   string
	stats *AssetStatistics
}

// Cache memoizes Builder output keyed by the canonical (sorted, deduplicated) symbol set.
//
// Get is safe for concurrent use. Concurrent misses on the same key share a single
// load-and-build through singleflight; distinct keys build independently. A caller
// that gives up stops waiting but does not cancel the shared build.
type Cache struct {
	source      PriceSource
	builder     *Builder
	clock       Clock
	ttl         time.Duration
	max         int
	loadTimeout time.Duration

	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List // front = most recently used
	generation uint64     // bumped by every invalidation

	group  singleflight.Group
	builds atomic.Int64
	log    zerolog.Logger
}

// NewCache creates a statistics cache backed by source and builder
func NewCache(source PriceSource, builder *Builder, cfg CacheConfig, log zerolog.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	return &Cache{
		source:      source,
		builder:     builder,
		clock:       cfg.Clock,
		ttl:         cfg.TTL,
		max:         cfg.MaxEntries,
		loadTimeout: cfg.LoadTimeout,
		entries:     make(map[string]*list.Element),
		lru:         list.New(),
		log:         log.With().Str("component", "statistics_cache").Logger(),
	}
}

// CanonicalSymbols returns the sorted, deduplicated symbol set and its cache key
func CanonicalSymbols(symbols []string) ([]string, string) {
	seen := make(map[string]struct{}, len(symbols))
	canonical := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		canonical = append(canonical, s)
	}
	sort.Strings(canonical)
	return canonical, strings.Join(canonical, ",")
}

// Get returns statistics for symbols, ordered as requested.
// A fresh entry (age < TTL) is served from memory; otherwise the histories are
// loaded, the Builder runs once, and the entry for that key is replaced.
func (c *Cache) Get(ctx context.Context, symbols []string) (*AssetStatistics, error) {
	canonical, key := CanonicalSymbols(symbols)
	if len(canonical) == 0 {
		return nil, fmt.Errorf("no symbols provided")
	}

	if stats, ok := c.lookup(key); ok {
		c.log.Debug().Str("key", key).Msg("Statistics cache hit")
		return stats.Subset(symbols)
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.build(ctx, key, canonical)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.log.Debug().Str("key", key).Msg("Joined in-flight statistics build")
		}
		return res.Val.(*AssetStatistics).Subset(symbols)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// build loads and builds one symbol set. The load runs detached from the caller
// that started the flight so other waiters are not failed by its cancellation.
// The result is only stored when no invalidation happened since the load began.
func (c *Cache) build(ctx context.Context, key string, canonical []string) (*AssetStatistics, error) {
	// A concurrent flight may have populated the entry while we waited
	if stats, ok := c.lookup(key); ok {
		return stats, nil
	}

	gen := c.currentGeneration()

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
	defer cancel()

	assets, err := c.source.LoadAssets(loadCtx, canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to load price history: %w", err)
	}
	stats, err := c.builder.Build(assets)
	if err != nil {
		return nil, err
	}
	stats.CreatedAt = c.clock.Now()
	c.builds.Add(1)

	if !c.storeIfCurrent(key, stats, gen) {
		c.log.Debug().Str("key", key).Msg("Cache invalidated during build, result not stored")
	}

	c.log.Info().
		Str("key", key).
		Int("assets", stats.Size()).
		Int("observations", stats.Observations).
		Msg("Built asset statistics")
	return stats, nil
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// lookup returns a fresh entry and marks it most recently used
func (c *Cache) lookup(key string) (*AssetStatistics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if !c.fresh(entry.stats) {
		return nil, false
	}
	c.lru.MoveToFront(el)
	return entry.stats, true
}

// storeIfCurrent stores stats unless an invalidation bumped the generation after gen was read
func (c *Cache) storeIfCurrent(key string, stats *AssetStatistics, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return false
	}
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).stats = stats
		c.lru.MoveToFront(el)
		return true
	}

	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, stats: stats})
	for c.lru.Len() > c.max {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	return true
}

func (c *Cache) fresh(stats *AssetStatistics) bool {
	return c.clock.Now().Sub(stats.CreatedAt) < c.ttl
}

// Purge removes expired entries and returns how many were dropped
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, el := range c.entries {
		if !c.fresh(el.Value.(*cacheEntry).stats) {
			c.lru.Remove(el)
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Invalidate drops the entry for a symbol set, if any
func (c *Cache) Invalidate(symbols []string) {
	_, key := CanonicalSymbols(symbols)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if el, ok := c.entries[key]; ok {
		c.lru.Remove(el)
		delete(c.entries, key)
	}
}

// InvalidateSymbols drops every cached set containing any of symbols and
// returns how many were dropped. Used when new prices arrive.
func (c *Cache) InvalidateSymbols(symbols []string) int {
	stale := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		stale[s] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++

	removed := 0
	for key, el := range c.entries {
		for _, s := range el.Value.(*cacheEntry).stats.Symbols {
			if _, ok := stale[s]; ok {
				c.lru.Remove(el)
				delete(c.entries, key)
				removed++
				break
			}
		}
	}
	if removed > 0 {
		c.log.Debug().Strs("symbols", symbols).Int("removed", removed).Msg("Invalidated cached statistics")
	}
	return removed
}

// Len returns the number of cached symbol sets, fresh or not
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Builds returns how many times the Builder has run
func (c *Cache) Builds() int64 {
	return c.builds.Load()
}
