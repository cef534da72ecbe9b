package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
)

// MemoryAddressCache keeps derived account addresses in process.
type MemoryAddressCache struct {
	cache *cache.Cache
}

func NewMemoryAddressCache(ttl time.Duration) *MemoryAddressCache {
	return &MemoryAddressCache{
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *MemoryAddressCache) Get(ctx context.Context, key string) (common.Address, bool) {
	cached, found := c.cache.Get(key)
	if !found {
		return common.Address{}, false
	}
	return cached.(common.Address), true
}

func (c *MemoryAddressCache) Set(ctx context.Context, key string, address common.Address) {
	c.cache.Set(key, address, cache.DefaultExpiration)
}

// MemcachedAddressCache shares derived addresses between processes.
type MemcachedAddressCache struct {
	mc  *memcache.Client
	ttl int32
}

func NewMemcachedAddressCache(mc *memcache.Client, ttl time.Duration) *MemcachedAddressCache {
	return &MemcachedAddressCache{
		mc:  mc,
		ttl: int32(ttl.Seconds()),
	}
}

func (c *MemcachedAddressCache) Get(ctx context.Context, key string) (common.Address, bool) {
	item, err := c.mc.Get(key)
	if err != nil {
		if err != memcache.ErrCacheMiss {
			slog.WarnContext(ctx, "memcached get failed", slog.String("key", key), slog.String("error", err.Error()), slog.String("module", "cache"))
		}
		return common.Address{}, false
	}
	if len(item.Value) != common.AddressLength {
		return common.Address{}, false
	}
	return common.BytesToAddress(item.Value), true
}

func (c *MemcachedAddressCache) Set(ctx context.Context, key string, address common.Address) {
	err := c.mc.Set(&memcache.Item{Key: key, Value: address.Bytes(), Expiration: c.ttl})
	if err != nil {
		slog.WarnContext(ctx, "memcached set failed", slog.String("key", key), slog.String("error", err.Error()), slog.String("module", "cache"))
	}
}

// Tiered checks the first cache before the second and fills the first on a hit.
type Tiered struct {
	first  addressCache
	second addressCache
}

type addressCache interface {
	Get(ctx context.Context, key string) (common.Address, bool)
	Set(ctx context.Context, key string, address common.Address)
}

func NewTiered(first, second addressCache) *Tiered {
	return &Tiered{first: first, second: second}
}

func (t *Tiered) Get(ctx context.Context, key string) (common.Address, bool) {
	if address, ok := t.first.Get(ctx, key); ok {
		return address, true
	}
	address, ok := t.second.Get(ctx, key)
	if ok {
		t.first.Set(ctx, key, address)
	}
	return address, ok
}

func (t *Tiered) Set(ctx context.Context, key string, address common.Address) {
	t.first.Set(ctx, key, address)
	t.second.Set(ctx, key, address)
}
