package paywall

import (
	"time"

	"github.com/maypok86/otter"

	"github.com/Resinat/Paygate/internal/model"
)

// responseCache keeps recently fetched definitions keyed by FetchKey.
// A nil *responseCache is a valid, always-missing cache.
type responseCache struct {
	cache otter.Cache[Key, model.Paywall]
}

// newResponseCache returns nil when either bound is non-positive.
func newResponseCache(maxEntries int, ttl time.Duration) *responseCache {
	if maxEntries <= 0 || ttl <= 0 {
		return nil
	}
	cache, err := otter.MustBuilder[Key, model.Paywall](maxEntries).
		Cost(func(_ Key, _ model.Paywall) uint32 { return 1 }).
		WithTTL(ttl).
		Build()
	if err != nil {
		panic("paywall: failed to create response cache: " + err.Error())
	}
	return &responseCache{cache: cache}
}

func (c *responseCache) get(key Key) (model.Paywall, bool) {
	if c == nil {
		return model.Paywall{}, false
	}
	return c.cache.Get(key)
}

func (c *responseCache) set(key Key, p model.Paywall) {
	if c == nil {
		return
	}
	c.cache.Set(key, p)
}

func (c *responseCache) close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
