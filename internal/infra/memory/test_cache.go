package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"hitest/internal/domain"
)

// TestLoader fetches a test with its tasks and questions from the backing store.
type TestLoader interface {
	LoadTest(ctx context.Context, id string) (domain.Test, error)
}

// TestCache keeps participant-facing test definitions with a TTL to avoid
// repeated store hits while a study is live.
type TestCache struct {
	loader TestLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedTest
}

type cachedTest struct {
	test      domain.Test
	expiresAt time.Time
}

func NewTestCache(loader TestLoader, ttl time.Duration) *TestCache {
	return &TestCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedTest),
	}
}

func (c *TestCache) GetTest(ctx context.Context, id string) (domain.Test, error) {
	if t, ok := c.lookup(id); ok {
		return t, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		if t, ok := c.lookup(id); ok {
			return t, nil
		}
		t, err := c.loader.LoadTest(ctx, id)
		if err != nil {
			return domain.Test{}, err
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			c.mu.Lock()
			c.cache[id] = cachedTest{test: t, expiresAt: c.clock().Add(ttl)}
			c.mu.Unlock()
		}
		return t, nil
	})
	if err != nil {
		return domain.Test{}, err
	}
	return result.(domain.Test), nil
}

// Invalidate drops the cached entry so the next read reloads it.
func (c *TestCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
	c.sf.Forget(id)
}

func (c *TestCache) lookup(id string) (domain.Test, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[id]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Test{}, false
	}
	return entry.test, true
}

func (c *TestCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
