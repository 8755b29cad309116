package solver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/metrics"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
	"github.com/speedrun-hq/speedrun-intents/pkg/recipients"
)

// ManifestSource looks up the off-chain recipient manifest of an intent.
// *relayerclient.Client satisfies it directly, a recipients.Store through ManifestsFromStore.
type ManifestSource interface {
	GetRecipients(ctx context.Context, intentID string) (*models.RecipientManifest, error)
}

type storeSource struct {
	store recipients.Store
}

// ManifestsFromStore reads manifests straight from a recipient store
func ManifestsFromStore(store recipients.Store) ManifestSource {
	return storeSource{store: store}
}

func (s storeSource) GetRecipients(ctx context.Context, intentID string) (*models.RecipientManifest, error) {
	return s.store.Get(ctx, intentID)
}

// ErrManifestChainMismatch marks a manifest stored for another destination chain
var ErrManifestChainMismatch = errors.New("manifest destination chain mismatch")

// ManifestResult is either ManifestFound or ManifestMissing
type ManifestResult interface {
	manifestResult()
}

// ManifestFound carries the stored manifest
type ManifestFound struct {
	Manifest *models.RecipientManifest
}

// ManifestMissing records why no manifest could be used
type ManifestMissing struct {
	Reason error
}

func (ManifestFound) manifestResult()   {}
func (ManifestMissing) manifestResult() {}

// LookupManifest never fails: any lookup error becomes ManifestMissing, and so
// does a manifest written for another destination chain. A manifest without a
// chain id applies to any destination.
func LookupManifest(ctx context.Context, source ManifestSource, intentID string, destinationChainID int) ManifestResult {
	if source == nil {
		return ManifestMissing{Reason: errors.New("no manifest source configured")}
	}
	m, err := source.GetRecipients(ctx, intentID)
	if err != nil {
		return ManifestMissing{Reason: err}
	}
	if err := recipients.Validate(m); err != nil {
		return ManifestMissing{Reason: err}
	}
	if m.ChainID != 0 && m.ChainID != destinationChainID {
		return ManifestMissing{Reason: fmt.Errorf("manifest of intent %s targets chain %d, not %d: %w",
			intentID, m.ChainID, destinationChainID, ErrManifestChainMismatch)}
	}
	return ManifestFound{Manifest: m}
}

// FallbackPolicy decides where the funds go when an intent has no usable manifest
type FallbackPolicy interface {
	Recipients(intent *models.Intent) ([]common.Address, []*big.Int, error)
}

// FreshAddressFallback pays the whole expected amount to a newly generated address
type FreshAddressFallback struct{}

func (FreshAddressFallback) Recipients(intent *models.Intent) ([]common.Address, []*big.Int, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate fallback recipient: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	return []common.Address{addr}, []*big.Int{new(big.Int).Set(intent.ExpectedDestinationAmount)}, nil
}

// payoutPlan resolves the recipients and amounts of a delivery. The amounts always
// sum to exactly the expected destination amount.
func (t *intentTask) payoutPlan(ctx context.Context) ([]common.Address, []*big.Int, string, error) {
	expected := t.intent.ExpectedDestinationAmount

	switch res := LookupManifest(ctx, t.engine.manifests, t.intent.ID.String(), t.destination).(type) {
	case ManifestFound:
		amounts := fitAmounts(res.Manifest.Amounts, expected)
		t.logger.InfoWithChain(t.destination, "Intent %s: delivering to %d recipients from manifest", t.intent.ID, len(amounts))
		return res.Manifest.Recipients, amounts, "found", nil
	case ManifestMissing:
		if errors.Is(res.Reason, recipients.ErrNotFound) {
			t.logger.NoticeWithChain(t.destination, "Intent %s: no recipient manifest, using fallback recipient", t.intent.ID)
		} else {
			t.logger.ErrorWithChain(t.destination, "Intent %s: recipient manifest unavailable (%v), using fallback recipient", t.intent.ID, res.Reason)
		}
	}

	addrs, amounts, err := t.engine.fallback.Recipients(t.intent)
	if err != nil {
		return nil, nil, "", err
	}
	return addrs, amounts, "fallback", nil
}

// fitAmounts scales an oversized manifest down to expected, and gives any shortfall
// to the last recipient so the user-visible total is always expected
func fitAmounts(amounts []*big.Int, expected *big.Int) []*big.Int {
	out := recipients.Rescale(amounts, expected)
	if short := new(big.Int).Sub(expected, models.SumAmounts(out)); short.Sign() > 0 && len(out) > 0 {
		out[len(out)-1].Add(out[len(out)-1], short)
	}
	return out
}

// deliver pays the recipients on the destination chain
func (t *intentTask) deliver(ctx context.Context) error {
	dest := t.engine.clients[t.destination]
	t.setPhase(ctx, PhaseDelivering)

	if t.resumed {
		solved, err := dest.IsIntentSolvedOnChain2(ctx, t.intent.ID)
		if err != nil {
			t.engine.recordFailure(t.destination, err)
			return err
		}
		if solved {
			t.logger.NoticeWithChain(t.destination, "Intent %s was already solved on chain %d", t.intent.ID, t.destination)
			return nil
		}
	}

	addrs, amounts, source, err := t.payoutPlan(ctx)
	if err != nil {
		return err
	}
	total := models.SumAmounts(amounts)

	err = t.engine.retry(ctx, t.destination, "delivery", func() error {
		lock := t.engine.spendLocks[t.destination]
		lock.Lock()
		defer lock.Unlock()

		if err := ensureAllowance(ctx, dest, t.intent.DestinationToken, total); err != nil {
			return err
		}
		balance, err := dest.TokenBalance(ctx, t.intent.DestinationToken, dest.Address())
		if err != nil {
			return err
		}
		if balance.Cmp(total) < 0 {
			return fmt.Errorf("insufficient balance on chain %d: have %s, need %s: %w", t.destination, balance, total, ledger.ErrInsufficientBalance)
		}
		receipt, err := dest.SolveIntentOnChain2(ctx, ledger.SolveParams{
			IntentID:   t.intent.ID,
			User:       t.intent.User,
			Token:      t.intent.DestinationToken,
			Amount:     total,
			Recipients: addrs,
			Amounts:    amounts,
		})
		if err != nil {
			return err
		}
		t.logger.InfoWithChain(t.destination, "Intent %s solved on chain %d, tx %s", t.intent.ID, t.destination, receipt.TxHash.Hex())
		return nil
	})

	status := "success"
	if errors.Is(err, ledger.ErrAlreadySolved) {
		t.logger.NoticeWithChain(t.destination, "Intent %s was already solved on chain %d", t.intent.ID, t.destination)
		err = nil
	}
	if err != nil {
		status = "failed"
	}
	metrics.Deliveries.WithLabelValues(strconv.Itoa(t.destination), source, status).Inc()
	return err
}

// ensureAllowance approves the ledger contract for exactly amount when the current allowance is short
func ensureAllowance(ctx context.Context, client ledger.Client, token common.Address, amount *big.Int) error {
	allowance, err := client.Allowance(ctx, token, client.Address(), client.ContractAddress())
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}
	_, err = client.ApproveToken(ctx, token, client.ContractAddress(), amount)
	return err
}
