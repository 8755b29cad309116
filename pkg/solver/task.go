package solver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/metrics"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// intentTask drives one intent from discovery to payout. It owns its copy of the
// state and publishes every change to the engine loop.
type intentTask struct {
	engine      *Engine
	key         models.IntentKey
	intent      *models.Intent
	origin      ledger.Client
	destination int
	ended       <-chan struct{}
	state       BidState
	resumed     bool
	deposited   bool
	logger      logger.Logger
}

func (t *intentTask) chainID() int {
	return t.origin.ChainID()
}

func (t *intentTask) label() string {
	return strconv.Itoa(t.chainID())
}

func (t *intentTask) update(ctx context.Context, fn func(*BidState)) {
	fn(&t.state)
	t.engine.publish(ctx, t.key, t.state)
}

func (t *intentTask) setPhase(ctx context.Context, phase Phase) {
	t.update(ctx, func(s *BidState) { s.Phase = phase })
}

func (t *intentTask) abandon(reason string, format string, args ...interface{}) error {
	metrics.IntentsAbandoned.WithLabelValues(t.label(), reason).Inc()
	t.logger.InfoWithChain(t.chainID(), "Abandoning intent %s: "+format, append([]interface{}{t.intent.ID}, args...)...)
	return errAbandoned
}

func (t *intentTask) run(ctx context.Context) (string, error) {
	started := time.Now()

	if t.resumed {
		ours, err := t.adopt(ctx)
		if err != nil {
			return outcomeFailed, err
		}
		if !ours {
			return outcomeSkipped, nil
		}
	} else {
		ceiling, err := t.evaluate(ctx)
		if err != nil {
			return outcomeAbandoned, err
		}
		if err := t.bid(ctx, ceiling); err != nil {
			if errors.Is(err, errAbandoned) {
				return outcomeAbandoned, err
			}
			return outcomeCancelled, err
		}
	}

	won, err := t.concludeAuction(ctx)
	if err != nil {
		return outcomeFailed, err
	}
	if !won {
		if !t.resumed {
			metrics.AuctionsLost.WithLabelValues(t.label()).Inc()
		}
		return outcomeLost, nil
	}
	if !t.resumed {
		metrics.AuctionsWon.WithLabelValues(t.label()).Inc()
	}

	if err := t.deliver(ctx); err != nil {
		return outcomeFailed, fmt.Errorf("delivery failed: %w", err)
	}

	baseline, err := t.settle(ctx)
	if err != nil {
		return outcomeFailed, fmt.Errorf("settlement failed: %w", err)
	}

	if !t.awaitPayout(ctx, baseline) {
		metrics.Completions.WithLabelValues(t.label(), outcomeTimeout).Inc()
		if ctx.Err() != nil {
			return outcomeCancelled, ctx.Err()
		}
		return outcomeTimeout, fmt.Errorf("payout not observed within %v", t.engine.cfg.CompletionTimeout)
	}
	metrics.Completions.WithLabelValues(t.label(), "success").Inc()
	metrics.IntentProcessingTime.WithLabelValues(t.label()).Observe(time.Since(started).Seconds())
	return outcomeCompleted, nil
}

// adopt re-reads an intent whose auction closed while it was not tracked and
// reports whether it is still ours to carry on
func (t *intentTask) adopt(ctx context.Context) (bool, error) {
	chainID := t.chainID()
	self := t.origin.Address()

	intent, err := t.origin.GetIntent(ctx, t.intent.ID)
	if err != nil {
		t.engine.recordFailure(chainID, err)
		return false, fmt.Errorf("failed to read intent: %w", err)
	}
	bid := intent.WinningBid

	switch intent.State {
	case models.StateCreated:
		if intent.AuctionOpen(t.engine.clock.Now()) {
			return false, nil
		}
		highest, err := t.origin.GetHighestBid(ctx, intent.ID)
		if err != nil {
			t.engine.recordFailure(chainID, err)
			return false, fmt.Errorf("failed to read highest bid: %w", err)
		}
		if !highest.HasBid() || highest.Solver != self {
			return false, nil
		}
		bid = highest.Amount
	case models.StateFinalized, models.StateDeposited:
		if intent.WinningSolver != self {
			return false, nil
		}
	default:
		return false, nil
	}

	t.intent = intent
	t.update(ctx, func(s *BidState) {
		s.Intent = intent
		s.Phase = PhaseFinalizing
		s.IsWinning = true
		if bid != nil {
			s.CurrentBid = bid
		}
	})
	t.logger.InfoWithChain(chainID, "Resuming won intent %s in state %s", intent.ID, intent.State)
	return true, nil
}

// resumable tells whether a failed run may be picked up again. A deposited
// intent is always resumed.
func (t *intentTask) resumable(outcome string, err error) bool {
	if outcome != outcomeFailed && outcome != outcomeTimeout {
		return false
	}
	if t.deposited {
		return true
	}
	shouldRetry, _ := classifyError(err)
	return shouldRetry
}

// evaluate fixes the profitable bid ceiling from the current source token balance
func (t *intentTask) evaluate(ctx context.Context) (*big.Int, error) {
	balance, err := t.origin.TokenBalance(ctx, t.intent.SourceToken, t.origin.Address())
	if err != nil {
		t.engine.recordFailure(t.chainID(), err)
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	ceiling, ok := CalculateProfitableBid(t.intent, balance, t.engine.cfg)
	if !ok {
		return nil, t.abandon("unprofitable", "ceiling %s below expected %s", ceiling, t.intent.ExpectedDestinationAmount)
	}
	t.update(ctx, func(s *BidState) {
		s.ProfitableBidCeiling = ceiling
		s.Phase = PhaseBidding
	})
	return ceiling, nil
}

// bid re-evaluates the auction every bid interval until it ends
func (t *intentTask) bid(ctx context.Context, ceiling *big.Int) error {
	ticker := time.NewTicker(t.engine.cfg.BidInterval)
	defer ticker.Stop()

	for {
		if !t.intent.AuctionOpen(t.engine.clock.Now()) {
			return nil
		}
		if err := t.bidOnce(ctx, ceiling); err != nil {
			if errors.Is(err, errAbandoned) {
				return err
			}
			t.logger.ErrorWithChain(t.chainID(), "Bid on intent %s failed: %v", t.intent.ID, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.ended:
			return nil
		case <-ticker.C:
		}
	}
}

func (t *intentTask) bidOnce(ctx context.Context, ceiling *big.Int) error {
	chainID := t.chainID()
	if t.engine.paused.Load() {
		return nil
	}
	if cb, ok := t.engine.breakers[chainID]; ok && cb.IsOpen() {
		t.logger.DebugWithChain(chainID, "Circuit breaker open, not bidding on intent %s", t.intent.ID)
		return nil
	}

	highest, err := t.origin.GetHighestBid(ctx, t.intent.ID)
	if err != nil {
		t.engine.recordFailure(chainID, err)
		return err
	}
	if highest.HasBid() && highest.Solver == t.origin.Address() {
		if !t.state.IsWinning {
			t.update(ctx, func(s *BidState) {
				s.IsWinning = true
				s.CurrentBid = highest.Amount
			})
		}
		return nil
	}

	next := NextBid(highest, t.intent.ExpectedDestinationAmount, t.engine.cfg.BidIncrement)
	if next.Cmp(ceiling) > 0 {
		return t.abandon("outbid", "next bid %s exceeds ceiling %s", next, ceiling)
	}

	balance, err := t.origin.TokenBalance(ctx, t.intent.SourceToken, t.origin.Address())
	if err != nil {
		t.engine.recordFailure(chainID, err)
		return err
	}
	available := new(big.Int).Sub(balance, fraction(balance, t.engine.cfg.BalanceBuffer))
	if available.Cmp(next) < 0 {
		return t.abandon("insufficient_balance", "bid %s exceeds available balance %s", next, available)
	}

	receipt, err := t.origin.PlaceBid(ctx, t.intent.ID, next)
	if err != nil {
		metrics.BidsPlaced.WithLabelValues(t.label(), "failed").Inc()
		if t.state.IsWinning {
			t.update(ctx, func(s *BidState) { s.IsWinning = false })
		}
		// lost a race with another bid; the next tick re-reads the auction
		if errors.Is(err, ledger.ErrBidTooLow) || errors.Is(err, ledger.ErrAuctionEnded) {
			t.logger.DebugWithChain(chainID, "Bid %s on intent %s rejected: %v", next, t.intent.ID, err)
			return nil
		}
		t.engine.recordFailure(chainID, err)
		return err
	}
	t.engine.recordSuccess(chainID)
	metrics.BidsPlaced.WithLabelValues(t.label(), "success").Inc()
	t.logger.InfoWithChain(chainID, "Bid %s on intent %s (ceiling %s), tx %s", next, t.intent.ID, ceiling, receipt.TxHash.Hex())

	t.update(ctx, func(s *BidState) {
		s.CurrentBid = next
		s.IsWinning = true
	})
	return nil
}

// concludeAuction finalizes the auction if needed and deposits the winning bid.
// It reports false when another solver won.
func (t *intentTask) concludeAuction(ctx context.Context) (bool, error) {
	t.setPhase(ctx, PhaseFinalizing)
	deadline := t.intent.AuctionEndTime.Add(t.engine.cfg.AuctionGrace)

	ticker := time.NewTicker(t.engine.cfg.BidInterval)
	defer ticker.Stop()

	for {
		done, won, err := t.tryConclude(ctx)
		if done {
			return won, err
		}
		if err != nil {
			t.logger.ErrorWithChain(t.chainID(), "Concluding auction of intent %s failed: %v", t.intent.ID, err)
		}
		if t.engine.clock.Now().After(deadline) {
			return false, fmt.Errorf("auction of intent %s not concluded within %v of its end: %v", t.intent.ID, t.engine.cfg.AuctionGrace, err)
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// tryConclude takes one step toward a deposited intent. done is false while
// another attempt may still succeed.
func (t *intentTask) tryConclude(ctx context.Context) (done, won bool, err error) {
	chainID := t.chainID()
	self := t.origin.Address()

	intent, err := t.origin.GetIntent(ctx, t.intent.ID)
	if err != nil {
		t.engine.recordFailure(chainID, err)
		return false, false, err
	}

	switch intent.State {
	case models.StateCreated:
		highest, err := t.origin.GetHighestBid(ctx, t.intent.ID)
		if err != nil {
			t.engine.recordFailure(chainID, err)
			return false, false, err
		}
		if !highest.HasBid() || highest.Solver != self {
			return true, false, nil
		}
		if intent.AuctionOpen(t.engine.clock.Now()) {
			return false, false, nil
		}
		if _, err := t.origin.FinalizeAuction(ctx, t.intent.ID); err != nil && !errors.Is(err, ledger.ErrAlreadyFinalized) {
			t.engine.recordFailure(chainID, err)
			return false, false, err
		}
		t.logger.InfoWithChain(chainID, "Finalized auction of intent %s", t.intent.ID)
		return t.tryConclude(ctx)

	case models.StateFinalized:
		if intent.WinningSolver != self {
			return true, false, nil
		}
		t.intent = intent
		err := t.engine.retry(ctx, chainID, "deposit", func() error {
			lock := t.engine.spendLocks[chainID]
			lock.Lock()
			defer lock.Unlock()

			if err := ensureAllowance(ctx, t.origin, intent.SourceToken, intent.WinningBid); err != nil {
				return err
			}
			_, err := t.origin.DepositAndPickup(ctx, intent.ID)
			return err
		})
		if err != nil {
			return true, true, fmt.Errorf("deposit failed: %w", err)
		}
		t.deposited = true
		t.logger.InfoWithChain(chainID, "Won intent %s with bid %s, deposited", intent.ID, intent.WinningBid)
		return true, true, nil

	case models.StateDeposited:
		if intent.WinningSolver != self {
			return true, false, nil
		}
		t.intent = intent
		t.deposited = true
		return true, true, nil

	default:
		return true, false, nil
	}
}

// settle asks the relayer to pay out the intent and returns the source token
// balance observed right before the request
func (t *intentTask) settle(ctx context.Context) (*big.Int, error) {
	t.setPhase(ctx, PhaseSettling)
	chainID := t.chainID()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(t.engine.cfg.SettleDelay):
	}

	baseline, err := t.origin.TokenBalance(ctx, t.intent.SourceToken, t.origin.Address())
	if err != nil {
		return nil, err
	}

	settler := t.engine.settler
	if settler == nil {
		t.logger.NoticeWithChain(chainID, "No relayer configured, waiting for intent %s to be settled externally", t.intent.ID)
		return baseline, nil
	}

	req := models.SettleRequest{
		IntentID:           t.intent.ID.String(),
		Chain2IntentID:     t.intent.ID.String(),
		OriginChainID:      chainID,
		DestinationChainID: t.destination,
		SolverAddress:      t.origin.Address().Hex(),
	}
	withProof := t.engine.proofs != nil && t.engine.policy != nil && t.engine.policy.RequiresProof(t.destination)

	err = t.engine.retry(ctx, chainID, "settlement", func() error {
		var (
			resp *models.SettleResponse
			err  error
		)
		if withProof {
			if req.ProofData, err = t.engine.proofs.ProofFor(ctx, t.intent, t.destination); err != nil {
				return fmt.Errorf("failed to build proof: %w", err)
			}
			resp, err = settler.SettleWithProof(ctx, req)
		} else {
			resp, err = settler.Settle(ctx, req)
		}
		if err != nil {
			return err
		}
		t.logger.InfoWithChain(chainID, "Relayer settled intent %s, tx %s (attempt %s)", t.intent.ID, resp.TransactionHash, resp.AttemptID)
		return nil
	})
	if err != nil {
		if _, errorType := classifyError(err); errorType == errAlreadyProcessed {
			return baseline, nil
		}
		return nil, err
	}
	return baseline, nil
}

// awaitPayout polls until the settlement payout shows up on the origin chain
func (t *intentTask) awaitPayout(ctx context.Context, baseline *big.Int) bool {
	t.setPhase(ctx, PhaseAwaitingPayout)
	target := new(big.Int).Add(baseline, t.intent.SettlementPayout())

	timeout := time.NewTimer(t.engine.cfg.CompletionTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(t.engine.cfg.CompletionPollInterval)
	defer ticker.Stop()

	for {
		if t.payoutObserved(ctx, target) {
			t.logger.InfoWithChain(t.chainID(), "Payout of %s for intent %s received", t.intent.SettlementPayout(), t.intent.ID)
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-timeout.C:
			t.logger.ErrorWithChain(t.chainID(), "Payout for intent %s not observed within %v", t.intent.ID, t.engine.cfg.CompletionTimeout)
			return false
		case <-ticker.C:
		}
	}
}

// payoutObserved checks the balance first. Concurrent deposits of other intents
// can hide the increase, so a completed intent also counts.
func (t *intentTask) payoutObserved(ctx context.Context, target *big.Int) bool {
	balance, err := t.origin.TokenBalance(ctx, t.intent.SourceToken, t.origin.Address())
	if err == nil && balance.Cmp(target) >= 0 {
		return true
	}
	intent, err := t.origin.GetIntent(ctx, t.intent.ID)
	return err == nil && intent.State == models.StateCompleted
}
