package solver

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

func testIntent(source, expected, reward int64) *models.Intent {
	return &models.Intent{
		ID:                        big.NewInt(1),
		SourceAmount:              big.NewInt(source),
		ExpectedDestinationAmount: big.NewInt(expected),
		Reward:                    big.NewInt(reward),
		WinningBid:                new(big.Int),
	}
}

func TestCalculateProfitableBid(t *testing.T) {
	base := config.SolverConfig{
		MinProfitMargin: 0.02,
		BalanceBuffer:   0.1,
		MaxBidAmount:    big.NewInt(1000),
		BidIncrement:    big.NewInt(1),
	}

	tests := []struct {
		name       string
		intent     *models.Intent
		balance    *big.Int
		mutate     func(*config.SolverConfig)
		ceiling    int64
		profitable bool
	}{
		{
			name:       "margin below escrow",
			intent:     testIntent(100, 95, 5),
			balance:    big.NewInt(1000),
			ceiling:    103,
			profitable: true,
		},
		{
			name:       "capped by balance buffer",
			intent:     testIntent(100, 95, 5),
			balance:    big.NewInt(100),
			ceiling:    90,
			profitable: false,
		},
		{
			name:       "capped by max bid",
			intent:     testIntent(100, 95, 5),
			balance:    big.NewInt(1000),
			mutate:     func(c *config.SolverConfig) { c.MaxBidAmount = big.NewInt(96) },
			ceiling:    96,
			profitable: true,
		},
		{
			name:       "max bid below expected",
			intent:     testIntent(100, 95, 5),
			balance:    big.NewInt(1000),
			mutate:     func(c *config.SolverConfig) { c.MaxBidAmount = big.NewInt(90) },
			ceiling:    90,
			profitable: false,
		},
		{
			name:       "margin too large",
			intent:     testIntent(100, 95, 5),
			balance:    big.NewInt(1000),
			mutate:     func(c *config.SolverConfig) { c.MinProfitMargin = 0.2 },
			ceiling:    84,
			profitable: false,
		},
		{
			name:       "ceiling equal to expected is accepted",
			intent:     testIntent(100, 103, 5),
			balance:    big.NewInt(1000),
			ceiling:    103,
			profitable: true,
		},
		{
			name:       "unknown balance is not a cap",
			intent:     testIntent(100, 95, 5),
			ceiling:    103,
			profitable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			ceiling, ok := CalculateProfitableBid(tt.intent, tt.balance, cfg)
			assert.Equal(t, tt.ceiling, ceiling.Int64())
			assert.Equal(t, tt.profitable, ok)
		})
	}
}

func TestNextBid(t *testing.T) {
	expected := big.NewInt(95)
	increment := big.NewInt(1)
	solver := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	tests := []struct {
		name    string
		highest *models.Bid
		want    int64
	}{
		{"no bid yet", &models.Bid{Amount: new(big.Int)}, 95},
		{"nil bid", nil, 95},
		{"outbid by increment", &models.Bid{Solver: solver, Amount: big.NewInt(97)}, 98},
		{"never below expected", &models.Bid{Solver: solver, Amount: big.NewInt(10)}, 95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextBid(tt.highest, expected, increment).Int64())
		})
	}
}
