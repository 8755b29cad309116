package chainclient

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultAllowanceTTL bounds how long a read allowance is trusted
const DefaultAllowanceTTL = 30 * time.Second

type allowanceKey struct {
	token   common.Address
	spender common.Address
}

// cachedAllowance represents a cached allowance with timestamp
type cachedAllowance struct {
	amount    *big.Int
	timestamp time.Time
}

// AllowanceCache keeps recently read or approved allowances of the client signer
// to avoid an RPC round trip before every approval
type AllowanceCache struct {
	mu       sync.RWMutex
	cache    map[allowanceKey]*cachedAllowance
	cacheTTL time.Duration
	now      func() time.Time
}

// NewAllowanceCache creates a new allowance cache
func NewAllowanceCache(cacheTTL time.Duration) *AllowanceCache {
	return &AllowanceCache{
		cache:    make(map[allowanceKey]*cachedAllowance),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Get retrieves a cached allowance if it's still valid
func (c *AllowanceCache) Get(token, spender common.Address) (*big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.cache[allowanceKey{token, spender}]
	if !exists {
		return nil, false
	}
	if c.now().Sub(cached.timestamp) > c.cacheTTL {
		return nil, false
	}
	return new(big.Int).Set(cached.amount), true
}

// Set stores an allowance with the current timestamp
func (c *AllowanceCache) Set(token, spender common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[allowanceKey{token, spender}] = &cachedAllowance{
		amount:    new(big.Int).Set(amount),
		timestamp: c.now(),
	}
}

// Invalidate drops every entry of a token, e.g. after a transfer spent part of the allowance
func (c *AllowanceCache) Invalidate(token common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.cache {
		if key.token == token {
			delete(c.cache, key)
		}
	}
}

// Clear removes all cached entries
func (c *AllowanceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[allowanceKey]*cachedAllowance)
}

// Len returns the number of cached entries, expired ones included
func (c *AllowanceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
