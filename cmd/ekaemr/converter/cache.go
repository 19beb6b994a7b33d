package converter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"
)

// ResultCache keeps successful conversions by record id. Cached results are
// shared between callers and must not be modified.
type ResultCache struct {
	entries  sync.Map // map[string]*cachedResult
	config   CacheConfig
	log      zerolog.Logger
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	// size counts the entries in the map
	size atomic.Int64
}

type cachedResult struct {
	result    *Result
	createdAt time.Time
	expiresAt time.Time
}

type CacheConfig struct {
	// Enabled determines if caching is active
	Enabled bool

	// DefaultTTL is the time-to-live of a cached result
	DefaultTTL time.Duration

	// MaxSize is the maximum number of results to keep; oldest go first.
	// Set to 0 for unlimited size
	MaxSize int

	// CleanupInterval defines how often expired entries are removed and MaxSize is enforced
	CleanupInterval time.Duration
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:         true,
		DefaultTTL:      15 * time.Minute,
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewResultCache creates the cache and starts its cleanup routine
func NewResultCache(config CacheConfig, log zerolog.Logger) *ResultCache {
	cache := &ResultCache{
		config:   config,
		log:      log.With().Str("component", "result_cache").Logger(),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	if config.Enabled && config.CleanupInterval > 0 {
		go cache.startCleanupRoutine()
		cache.log.Info().
			Dur("interval", config.CleanupInterval).
			Int("max_size", config.MaxSize).
			Dur("ttl", config.DefaultTTL).
			Msg("Started cache cleanup routine")
	}

	return cache
}

func (c *ResultCache) startCleanupRoutine() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopChan:
			c.log.Info().Msg("Stopping cache cleanup routine")
			return
		}
	}
}

type keyedResult struct {
	key   string
	entry *cachedResult
}

func (c *ResultCache) cleanup() {
	var (
		totalEntries   int
		expiredEntries int
		removedEntries int
		now            = c.now()
		live           = make([]keyedResult, 0)
	)

	c.entries.Range(func(key, value interface{}) bool {
		totalEntries++
		entry := value.(*cachedResult)

		if now.After(entry.expiresAt) {
			c.delete(key)
			expiredEntries++
		} else {
			live = append(live, keyedResult{key: key.(string), entry: entry})
		}
		return true
	})

	if c.config.MaxSize > 0 && len(live) > c.config.MaxSize {
		slices.SortFunc(live, func(a, b keyedResult) int {
			return a.entry.createdAt.Compare(b.entry.createdAt)
		})
		for _, kr := range live[:len(live)-c.config.MaxSize] {
			c.delete(kr.key)
			removedEntries++
		}
	}

	c.log.Debug().
		Int("total_entries", totalEntries).
		Int("expired_removed", expiredEntries).
		Int("size_limit_removed", removedEntries).
		Int("remaining_entries", len(live)-removedEntries).
		Msg("Completed cache cleanup")
}

func (c *ResultCache) delete(key interface{}) {
	if _, loaded := c.entries.LoadAndDelete(key); loaded {
		c.size.Add(-1)
	}
}

// Store caches a result. A nil, disabled or stopped cache ignores the call.
// Going over MaxSize evicts the oldest entries right away.
func (c *ResultCache) Store(recordID string, result *Result) {
	if c == nil || !c.config.Enabled || c.stopped.Load() {
		return
	}

	now := c.now()
	_, replaced := c.entries.Swap(recordID, &cachedResult{
		result:    result,
		createdAt: now,
		expiresAt: now.Add(c.config.DefaultTTL),
	})
	if !replaced {
		c.size.Add(1)
	}
	if c.config.MaxSize > 0 && c.size.Load() > int64(c.config.MaxSize) {
		c.cleanup()
	}
	c.log.Debug().
		Str("key", recordID).
		Time("expires", now.Add(c.config.DefaultTTL)).
		Msg("Stored conversion result in cache")
}

func (c *ResultCache) Get(recordID string) (*Result, bool) {
	if c == nil || !c.config.Enabled {
		return nil, false
	}

	value, ok := c.entries.Load(recordID)
	if !ok {
		return nil, false
	}
	entry := value.(*cachedResult)
	if c.now().After(entry.expiresAt) {
		c.delete(recordID)
		return nil, false
	}
	return entry.result, true
}

// Stop gracefully shuts down the cache
func (c *ResultCache) Stop() {
	if c == nil {
		return
	}
	c.stopped.Store(true)
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})

	c.entries.Range(func(key, _ interface{}) bool {
		c.delete(key)
		return true
	})

	c.log.Info().Msg("Cache cleared and stopped")
}
