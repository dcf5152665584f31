package redisad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"restaurant_offline/internal/adapters/observability"
	"restaurant_offline/internal/domain"
)

const namesKey = "blobcache:buckets"

func bucketKey(name string) string { return "blobcache:bucket:" + name }

// BlobCache stores response snapshots in Redis. Each bucket is one hash
// (field = cache key) and bucket names are tracked in a set so stale
// versions can be listed and dropped.
type BlobCache struct {
	c *redis.Client

	mu      sync.Mutex
	buckets map[string]*Bucket
}

func New(addr, pass string, db int) *BlobCache {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}))
}

func NewWithClient(c *redis.Client) *BlobCache {
	return &BlobCache{c: c, buckets: map[string]*Bucket{}}
}

func (b *BlobCache) Ping(ctx context.Context) error { return b.c.Ping(ctx).Err() }

func (b *BlobCache) Close() error { return b.c.Close() }

// OpenBucket registers the bucket name and returns a handle that is reused
// for the lifetime of the process.
func (b *BlobCache) OpenBucket(ctx context.Context, name string) (domain.Bucket, error) {
	if name == "" {
		return nil, errors.New("bucket name is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if bk, ok := b.buckets[name]; ok {
		return bk, nil
	}
	if err := b.c.SAdd(ctx, namesKey, name).Err(); err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", name, err)
	}
	bk := &Bucket{c: b.c, name: name}
	b.buckets[name] = bk
	return bk, nil
}

func (b *BlobCache) DeleteBucket(ctx context.Context, name string) error {
	b.mu.Lock()
	delete(b.buckets, name)
	b.mu.Unlock()

	_, err := b.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, bucketKey(name))
		p.SRem(ctx, namesKey, name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete bucket %s: %w", name, err)
	}
	observability.ObserveCache(name, "evict")
	return nil
}

func (b *BlobCache) ListBucketNames(ctx context.Context) ([]string, error) {
	names, err := b.c.SMembers(ctx, namesKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

type Bucket struct {
	c    *redis.Client
	name string
}

func (k *Bucket) Name() string { return k.name }

func (k *Bucket) Match(ctx context.Context, key string) (*domain.CacheEntry, bool, error) {
	v, err := k.c.HGet(ctx, bucketKey(k.name), key).Bytes()
	if err == redis.Nil {
		observability.ObserveCache(k.name, "miss")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var e domain.CacheEntry
	if err := json.Unmarshal(v, &e); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	observability.ObserveCache(k.name, "hit")
	return &e, true, nil
}

func (k *Bucket) Put(ctx context.Context, key string, e *domain.CacheEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	observability.ObserveCache(k.name, "put")
	return k.c.HSet(ctx, bucketKey(k.name), key, b).Err()
}

func (k *Bucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := k.c.HKeys(ctx, bucketKey(k.name)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
