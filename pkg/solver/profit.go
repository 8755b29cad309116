package solver

import (
	"math"
	"math/big"

	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// fractions are applied in parts per million
const ppm = 1_000_000

// CalculateProfitableBid returns the highest bid the solver accepts for an intent
// given its current source token balance. The second result is false when that
// ceiling is below the expected destination amount and the intent is not worth bidding on.
func CalculateProfitableBid(intent *models.Intent, balance *big.Int, cfg config.SolverConfig) (*big.Int, bool) {
	minProfitableBid := intent.Escrow()
	ceiling := new(big.Int).Sub(minProfitableBid, fraction(minProfitableBid, cfg.MinProfitMargin))

	if balance != nil {
		available := new(big.Int).Sub(balance, fraction(balance, cfg.BalanceBuffer))
		if available.Cmp(ceiling) < 0 {
			ceiling = available
		}
	}
	if cfg.MaxBidAmount != nil && cfg.MaxBidAmount.Sign() > 0 && cfg.MaxBidAmount.Cmp(ceiling) < 0 {
		ceiling = new(big.Int).Set(cfg.MaxBidAmount)
	}
	if ceiling.Sign() < 0 {
		ceiling = new(big.Int)
	}
	return ceiling, ceiling.Cmp(intent.ExpectedDestinationAmount) >= 0
}

// NextBid returns the amount to outbid the current highest bid with
func NextBid(highest *models.Bid, expected, increment *big.Int) *big.Int {
	if !highest.HasBid() {
		return new(big.Int).Set(expected)
	}
	next := new(big.Int).Add(highest.Amount, increment)
	if next.Cmp(expected) < 0 {
		next.Set(expected)
	}
	return next
}

func fraction(amount *big.Int, f float64) *big.Int {
	if f <= 0 {
		return new(big.Int)
	}
	parts := big.NewInt(int64(math.Round(f * ppm)))
	out := new(big.Int).Mul(amount, parts)
	return out.Quo(out, big.NewInt(ppm))
}
