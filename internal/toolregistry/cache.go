package toolregistry

import (
	"context"
	"strings"
	"time"

	"chemagent/internal/tools"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheMaxSize = 256
	defaultCacheTTL     = 30 * time.Minute
)

// CacheConfig configures the tool result cache behaviour.
type CacheConfig struct {
	// MaxSize is the maximum number of entries in the LRU cache.
	MaxSize int
	// TTL is how long a cached result remains valid.
	TTL time.Duration
	// ExcludeTools lists tool names that should never be cached even when
	// they declare themselves cacheable.
	ExcludeTools []string
}

// DefaultCacheConfig returns sensible defaults for tool result caching.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxSize:      defaultCacheMaxSize,
		TTL:          defaultCacheTTL,
		ExcludeTools: []string{tools.PythonREPL, tools.AiExpert, tools.WebSearch},
	}
}

type cacheEntry struct {
	output   string
	storedAt time.Time
}

// resultCache is shared by every wrapped tool of one registry; entries are
// keyed by tool name and trimmed input.
type resultCache struct {
	cache        *lru.Cache[string, cacheEntry]
	ttl          time.Duration
	excludeTools map[string]bool
}

func newResultCache(config CacheConfig) *resultCache {
	if config.MaxSize <= 0 {
		config.MaxSize = defaultCacheMaxSize
	}
	if config.TTL <= 0 {
		config.TTL = defaultCacheTTL
	}
	cache, err := lru.New[string, cacheEntry](config.MaxSize)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		return nil
	}
	exclude := make(map[string]bool, len(config.ExcludeTools))
	for _, name := range config.ExcludeTools {
		exclude[strings.TrimSpace(name)] = true
	}
	return &resultCache{cache: cache, ttl: config.TTL, excludeTools: exclude}
}

func (c *resultCache) accepts(tool tools.Tool) bool {
	if c == nil {
		return false
	}
	return tools.IsCacheable(tool) && !c.excludeTools[tool.Name()]
}

func (c *resultCache) wrap(tool tools.Tool) tools.Tool {
	return &cachedTool{Tool: tool, cache: c}
}

func cacheKey(name, input string) string {
	return name + ":" + strings.TrimSpace(input)
}

func (c *resultCache) get(key string) (string, bool) {
	entry, ok := c.cache.Get(key)
	if !ok {
		return "", false
	}
	if time.Since(entry.storedAt) >= c.ttl {
		c.cache.Remove(key)
		return "", false
	}
	return entry.output, true
}

func (c *resultCache) put(key, output string) {
	c.cache.Add(key, cacheEntry{output: output, storedAt: time.Now()})
}

// cachedTool decorates a deterministic tool. Failures are never cached.
type cachedTool struct {
	tools.Tool
	cache *resultCache
}

func (t *cachedTool) Invoke(ctx context.Context, input, sessionID string) (string, error) {
	key := cacheKey(t.Name(), input)
	if output, ok := t.cache.get(key); ok {
		return output, nil
	}
	output, err := t.Tool.Invoke(ctx, input, sessionID)
	if err != nil {
		return "", err
	}
	t.cache.put(key, output)
	return output, nil
}
