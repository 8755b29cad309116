package models

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeAndExtractIntentID(t *testing.T) {
	tests := []struct {
		name    string
		chainID int
		localID uint64
	}{
		{"horizen testnet", 845320009, 11},
		{"base sepolia", 84532, 1},
		{"zero counter", 8453, 0},
		{"max counter", 1, ^uint64(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := ComposeIntentID(tt.chainID, tt.localID)
			assert.Equal(t, tt.chainID, OriginChainOf(id))
			assert.Equal(t, new(big.Int).SetUint64(tt.localID), ExtractLocalID(id))
		})
	}
}

func TestComposedIDMatchesKnownValue(t *testing.T) {
	// Horizen testnet intent #11
	id := ComposeIntentID(845320009, 11)
	assert.Equal(t, "287647493468149004223305994324593771393899823115", id.String())
}

func TestExtractLocalIDIsTotal(t *testing.T) {
	assert.Equal(t, int64(0), ExtractLocalID(nil).Int64())
	assert.Equal(t, 0, OriginChainOf(nil))

	// plain counters carry no chain id
	assert.Equal(t, int64(42), ExtractLocalID(big.NewInt(42)).Int64())
	assert.Equal(t, 0, OriginChainOf(big.NewInt(42)))

	// negative input never panics
	assert.Equal(t, int64(7), ExtractLocalID(big.NewInt(-7)).Int64())
}

func TestParseIntentID(t *testing.T) {
	id, err := ParseIntentID("287647493468149004223305994324593771393899823115")
	require.NoError(t, err)
	assert.Equal(t, 845320009, OriginChainOf(id))

	id, err = ParseIntentID("0x0b")
	require.NoError(t, err)
	assert.Equal(t, int64(11), id.Int64())

	id, err = ParseIntentID("011")
	require.NoError(t, err)
	assert.Equal(t, int64(11), id.Int64(), "leading zero is not octal")

	_, err = ParseIntentID("abc")
	assert.Error(t, err)
	_, err = ParseIntentID("-1")
	assert.Error(t, err)
}

func TestIntentAmounts(t *testing.T) {
	intent := &Intent{
		SourceAmount:   big.NewInt(100),
		Reward:         big.NewInt(5),
		WinningBid:     big.NewInt(98),
		AuctionEndTime: time.Unix(1000, 0),
	}

	assert.Equal(t, int64(105), intent.Escrow().Int64())
	assert.Equal(t, int64(203), intent.SettlementPayout().Int64())
	assert.True(t, intent.AuctionOpen(time.Unix(999, 0)))
	assert.False(t, intent.AuctionOpen(time.Unix(1000, 0)))
}

func TestIntentStateHelpers(t *testing.T) {
	assert.Equal(t, "deposited", StateDeposited.String())
	assert.Equal(t, "unknown", IntentState(99).String())
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateCancelled.IsTerminal())
	assert.False(t, StateFinalized.IsTerminal())
}

func TestSumAmounts(t *testing.T) {
	m := &RecipientManifest{Amounts: []*big.Int{big.NewInt(30), big.NewInt(35), nil, big.NewInt(30)}}
	assert.Equal(t, int64(95), m.Sum().Int64())
}
