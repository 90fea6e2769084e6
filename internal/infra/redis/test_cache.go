package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"hitest/internal/domain"
)

// TestLoader fetches a test with its tasks and questions from the backing store.
type TestLoader interface {
	LoadTest(ctx context.Context, id string) (domain.Test, error)
}

// TestCache stores participant-facing test definitions as JSON in Redis
// (SET hitest:test:{id}) and falls back to the loader on a miss.
type TestCache struct {
	client *redis.Client
	loader TestLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewTestCache(client *redis.Client, loader TestLoader, ttl time.Duration) *TestCache {
	return &TestCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *TestCache) GetTest(ctx context.Context, id string) (domain.Test, error) {
	if t, ok := c.cached(ctx, id); ok {
		return t, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if t, ok := c.cached(ctx, id); ok {
			return t, nil
		}
		t, err := c.loader.LoadTest(ctx, id)
		if err != nil {
			return domain.Test{}, err
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			if raw, err := json.Marshal(t); err == nil {
				if err := c.client.Set(ctx, c.key(id), raw, ttl).Err(); err != nil {
					log.Printf("cache test %s: %v", id, err)
				}
			}
		}
		return t, nil
	})
	if err != nil {
		return domain.Test{}, err
	}
	return result.(domain.Test), nil
}

// Invalidate removes the cached definition; failures only delay freshness until the TTL.
func (c *TestCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		log.Printf("invalidate test %s: %v", id, err)
	}
	c.sf.Forget(id)
}

func (c *TestCache) cached(ctx context.Context, id string) (domain.Test, bool) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("read cached test %s: %v", id, err)
		}
		return domain.Test{}, false
	}
	var t domain.Test
	if err := json.Unmarshal(raw, &t); err != nil {
		return domain.Test{}, false
	}
	return t, true
}

func (c *TestCache) key(id string) string {
	return "hitest:test:" + id
}

func (c *TestCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
