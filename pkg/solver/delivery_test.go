package solver

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/speedrun-intents/pkg/chains"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
	"github.com/speedrun-hq/speedrun-intents/pkg/recipients"
)

func ints(values []*big.Int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = v.Int64()
	}
	return out
}

func amounts(values ...int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}

func TestFitAmounts(t *testing.T) {
	tests := []struct {
		name    string
		amounts []*big.Int
		want    []int64
	}{
		{"exact", amounts(60, 35), []int64{60, 35}},
		{"oversized is rescaled", amounts(120, 70), []int64{60, 35}},
		{"shortfall goes to last recipient", amounts(50, 40), []int64{50, 45}},
		{"single recipient", amounts(10), []int64{95}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fitAmounts(tt.amounts, big.NewInt(95))
			assert.Equal(t, tt.want, ints(got))
			assert.Equal(t, int64(95), models.SumAmounts(got).Int64())
		})
	}
}

type sourceFunc func(ctx context.Context, intentID string) (*models.RecipientManifest, error)

func (f sourceFunc) GetRecipients(ctx context.Context, intentID string) (*models.RecipientManifest, error) {
	return f(ctx, intentID)
}

func TestLookupManifest(t *testing.T) {
	ctx := context.Background()
	alice := common.HexToAddress("0x1111111111111111111111111111111111111111")

	store := recipients.NewMemoryStore()
	require.NoError(t, store.Put(ctx, &models.RecipientManifest{
		IntentID:   "7",
		Recipients: []common.Address{alice},
		Amounts:    amounts(95),
	}))

	t.Run("found in store", func(t *testing.T) {
		res := LookupManifest(ctx, ManifestsFromStore(store), "7", chains.BaseSepolia)
		found, ok := res.(ManifestFound)
		require.True(t, ok, "got %#v", res)
		assert.Equal(t, []common.Address{alice}, found.Manifest.Recipients)
	})

	t.Run("not stored", func(t *testing.T) {
		res := LookupManifest(ctx, ManifestsFromStore(store), "8", chains.BaseSepolia)
		missing, ok := res.(ManifestMissing)
		require.True(t, ok)
		assert.ErrorIs(t, missing.Reason, recipients.ErrNotFound)
	})

	t.Run("source unreachable", func(t *testing.T) {
		unreachable := sourceFunc(func(context.Context, string) (*models.RecipientManifest, error) {
			return nil, errors.New("connection refused")
		})
		_, ok := LookupManifest(ctx, unreachable, "7", chains.BaseSepolia).(ManifestMissing)
		assert.True(t, ok)
	})

	t.Run("malformed manifest", func(t *testing.T) {
		malformed := sourceFunc(func(_ context.Context, id string) (*models.RecipientManifest, error) {
			return &models.RecipientManifest{IntentID: id, Recipients: []common.Address{alice}, Amounts: amounts(1, 2)}, nil
		})
		missing, ok := LookupManifest(ctx, malformed, "7", chains.BaseSepolia).(ManifestMissing)
		require.True(t, ok)
		var verr *recipients.ValidationError
		assert.ErrorAs(t, missing.Reason, &verr)
	})

	t.Run("other destination chain", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, &models.RecipientManifest{
			IntentID:   "9",
			ChainID:    chains.Base,
			Recipients: []common.Address{alice},
			Amounts:    amounts(95),
		}))
		missing, ok := LookupManifest(ctx, ManifestsFromStore(store), "9", chains.BaseSepolia).(ManifestMissing)
		require.True(t, ok)
		assert.ErrorIs(t, missing.Reason, ErrManifestChainMismatch)

		_, ok = LookupManifest(ctx, ManifestsFromStore(store), "9", chains.Base).(ManifestFound)
		assert.True(t, ok)
	})

	t.Run("no source", func(t *testing.T) {
		_, ok := LookupManifest(ctx, nil, "7", chains.BaseSepolia).(ManifestMissing)
		assert.True(t, ok)
	})
}

func TestFreshAddressFallback(t *testing.T) {
	intent := testIntent(100, 95, 5)

	first, firstAmounts, err := FreshAddressFallback{}.Recipients(intent)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.NotEqual(t, common.Address{}, first[0])
	assert.Equal(t, []int64{95}, ints(firstAmounts))

	second, _, err := FreshAddressFallback{}.Recipients(intent)
	require.NoError(t, err)
	assert.NotEqual(t, first[0], second[0])
}
