// Package market holds the resolver's read-through cache of per-pool
// price, liquidity, and fee data, fed by a polling feed goroutine and
// consumed by the strategy and risk components.
package market

import (
	"strings"
	"sync"
	"time"

	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

func key(pool chain.PoolKey) chain.PoolKey {
	return chain.PoolKey{Chain: pool.Chain, Token: chain.Token(strings.ToLower(string(pool.Token)))}
}

// Cache is a concurrency-safe snapshot store keyed by (chain, token).
// Put is called only by feed goroutines; Get/Freshness never block on I/O.
type Cache struct {
	mu   sync.RWMutex
	data map[chain.PoolKey]models.MarketData
}

// NewCache constructs an empty Cache.
func NewCache() *Cache {
	return &Cache{data: make(map[chain.PoolKey]models.MarketData)}
}

// Put stores the latest snapshot for a pool, overwriting any prior one.
func (c *Cache) Put(snap models.MarketData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key(snap.Pool)] = snap
}

// Get returns the cached snapshot for a pool, if any.
func (c *Cache) Get(pool chain.PoolKey) (models.MarketData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.data[key(pool)]
	return snap, ok
}

// Freshness reports how long ago the pool's snapshot was fetched, or
// -1 if no snapshot has ever been stored.
func (c *Cache) Freshness(pool chain.PoolKey, now time.Time) time.Duration {
	snap, ok := c.Get(pool)
	if !ok {
		return -1
	}
	return snap.Age(now)
}

// Snapshot pairs the cached data of an order's source and destination
// pools. Strategies and the engine take the two models.MarketData
// values directly; no code path builds a Snapshot.
type Snapshot struct {
	Source      models.MarketData
	Destination models.MarketData
}
