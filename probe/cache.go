package probe

import (
	"sync"
	"time"

	"github.com/metafates/gache"
	"github.com/playbridge/playbridge/filesystem"
	"github.com/playbridge/playbridge/where"
	"github.com/samber/mo"
)

// cacheData is the on-disk layout of the probe cache.
type cacheData struct {
	Results map[string]*Result `json:"results"`
}

// cacher guards a gache file holding results keyed by source URL.
type cacher struct {
	internal *gache.Cache[*cacheData]
	mu       sync.RWMutex
}

func (c *cacher) Get(key string) mo.Option[*Result] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, expired, err := c.internal.Get()
	if err != nil || expired || data == nil {
		return mo.None[*Result]()
	}

	if result, ok := data.Results[key]; ok {
		return mo.Some(result)
	}
	return mo.None[*Result]()
}

func (c *cacher) Set(key string, result *Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, expired, err := c.internal.Get()
	if err != nil {
		return err
	}

	if expired || data == nil {
		data = &cacheData{Results: make(map[string]*Result)}
	}
	data.Results[key] = result
	return c.internal.Set(data)
}

// Clear drops every cached result.
func (c *cacher) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internal.Set(&cacheData{Results: make(map[string]*Result)})
}

// resultCacher is built on first use so the cache path follows the
// filesystem backend active at that time.
var resultCacher = sync.OnceValue(func() *cacher {
	return &cacher{
		internal: gache.New[*cacheData](&gache.Options{
			Path:       where.Probes(),
			Lifetime:   time.Hour * 24,
			FileSystem: &filesystem.GacheFs{},
		}),
	}
})

// ClearCache drops every cached probe result.
func ClearCache() error {
	return resultCacher().Clear()
}
