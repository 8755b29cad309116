package models

import (
	"fmt"
	"math/big"
	"strings"
)

// Intent identifiers embed the origin chain id above a 128-bit local counter:
//
//	id = originChainID << 128 | localID
//
// so ids minted on different chains never collide on a destination ledger.
const localIDBits = 128

var localIDMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), localIDBits), big.NewInt(1))

// ComposeIntentID builds the composite identifier for a local counter value
func ComposeIntentID(originChainID int, localID uint64) *big.Int {
	id := new(big.Int).Lsh(big.NewInt(int64(originChainID)), localIDBits)
	return id.Or(id, new(big.Int).SetUint64(localID))
}

// ExtractLocalID returns the per-chain counter part of an intent id. Nil yields zero.
func ExtractLocalID(id *big.Int) *big.Int {
	if id == nil {
		return new(big.Int)
	}
	return new(big.Int).And(new(big.Int).Abs(id), localIDMask)
}

// OriginChainOf returns the chain id embedded in an intent id, or zero for plain counters
func OriginChainOf(id *big.Int) int {
	if id == nil {
		return 0
	}
	hi := new(big.Int).Rsh(new(big.Int).Abs(id), localIDBits)
	if !hi.IsInt64() {
		return 0
	}
	return int(hi.Int64())
}

// ParseIntentID parses a decimal or 0x-prefixed intent id
func ParseIntentID(s string) (*big.Int, error) {
	raw := s
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	id, ok := new(big.Int).SetString(s, base)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid intent id: %q", raw)
	}
	return id, nil
}

// IntentKey identifies an intent across chains for in-memory bookkeeping
type IntentKey struct {
	ChainID int
	ID      string
}

// KeyOf builds the bookkeeping key of an intent id on a chain
func KeyOf(chainID int, id *big.Int) IntentKey {
	return IntentKey{ChainID: chainID, ID: id.String()}
}

func (k IntentKey) String() string {
	return fmt.Sprintf("%d/%s", k.ChainID, k.ID)
}
