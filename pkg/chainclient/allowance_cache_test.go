package chainclient

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAllowanceCache tests the AllowanceCache functionality
func TestAllowanceCache(t *testing.T) {
	tokenA := common.HexToAddress("0x0000000000000000000000000000000000000a01")
	tokenB := common.HexToAddress("0x0000000000000000000000000000000000000b01")
	spender := common.HexToAddress("0x0000000000000000000000000000000000000c01")

	t.Run("NewAllowanceCache", func(t *testing.T) {
		ttl := 60 * time.Second
		cache := NewAllowanceCache(ttl)

		require.NotNil(t, cache)
		assert.Equal(t, ttl, cache.cacheTTL)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("Set and Get", func(t *testing.T) {
		cache := NewAllowanceCache(time.Second)
		cache.Set(tokenA, spender, big.NewInt(98))

		amount, found := cache.Get(tokenA, spender)
		assert.True(t, found)
		assert.Equal(t, int64(98), amount.Int64())

		// returned value is a copy
		amount.SetInt64(1)
		amount, _ = cache.Get(tokenA, spender)
		assert.Equal(t, int64(98), amount.Int64())

		_, found = cache.Get(tokenB, spender)
		assert.False(t, found)
	})

	t.Run("TTL expiration", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		cache := NewAllowanceCache(10 * time.Second)
		cache.now = func() time.Time { return now }

		cache.Set(tokenA, spender, big.NewInt(5))
		_, found := cache.Get(tokenA, spender)
		assert.True(t, found)

		now = now.Add(11 * time.Second)
		_, found = cache.Get(tokenA, spender)
		assert.False(t, found)
	})

	t.Run("Invalidate", func(t *testing.T) {
		cache := NewAllowanceCache(time.Minute)
		cache.Set(tokenA, spender, big.NewInt(5))
		cache.Set(tokenB, spender, big.NewInt(6))

		cache.Invalidate(tokenA)

		_, found := cache.Get(tokenA, spender)
		assert.False(t, found)
		_, found = cache.Get(tokenB, spender)
		assert.True(t, found)
	})

	t.Run("Clear", func(t *testing.T) {
		cache := NewAllowanceCache(time.Minute)
		cache.Set(tokenA, spender, big.NewInt(5))
		cache.Set(tokenB, spender, big.NewInt(6))

		cache.Clear()
		assert.Equal(t, 0, cache.Len())
	})
}
