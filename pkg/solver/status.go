package solver

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/speedrun-intents/pkg/chains"
	"github.com/speedrun-hq/speedrun-intents/pkg/circuitbreaker"
	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// IntentStatus combines the ledger view of an intent with the engine's
type IntentStatus struct {
	Intent           *models.Intent `json:"intent"`
	HighestBid       *big.Int       `json:"highestBid"`
	HighestBidder    common.Address `json:"highestBidder"`
	TimeLeftSeconds  int64          `json:"timeLeftSeconds"`
	HasEnded         bool           `json:"hasEnded"`
	SolverAddress    common.Address `json:"solverAddress"`
	AreWeWinning     bool           `json:"areWeWinning"`
	IsBeingProcessed bool           `json:"isBeingProcessed"`
	Tracked          *BidState      `json:"tracked,omitempty"`
}

// ChainStatus summarizes one chain for the status endpoint
type ChainStatus struct {
	ChainID            int                   `json:"chainId"`
	Name               string                `json:"name"`
	SolverAddress      common.Address        `json:"solverAddress"`
	DestinationChainID int                   `json:"destinationChainId,omitempty"`
	HeadBlock          uint64                `json:"headBlock"`
	LastProcessedBlock uint64                `json:"lastProcessedBlock,omitempty"`
	CircuitBreaker     *circuitbreaker.State `json:"circuitBreaker,omitempty"`
	Balances           map[string]string     `json:"balances"`
	Error              string                `json:"error,omitempty"`
}

// Status is the overall engine state
type Status struct {
	Running       bool          `json:"running"`
	Paused        bool          `json:"paused"`
	ActiveIntents int           `json:"activeIntents"`
	Chains        []ChainStatus `json:"chains"`
}

func (e *Engine) client(chainID int) (ledger.Client, error) {
	c, ok := e.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d is not configured", chainID)
	}
	return c, nil
}

// IntentStatus reads an intent from its origin ledger
func (e *Engine) IntentStatus(ctx context.Context, chainID int, intentID *big.Int) (*IntentStatus, error) {
	c, err := e.client(chainID)
	if err != nil {
		return nil, err
	}
	intent, err := c.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	highest, err := c.GetHighestBid(ctx, intentID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	status := &IntentStatus{
		Intent:        intent,
		HighestBid:    highest.Amount,
		HighestBidder: highest.Solver,
		HasEnded:      !intent.AuctionOpen(now),
		SolverAddress: c.Address(),
		AreWeWinning:  highest.HasBid() && highest.Solver == c.Address(),
	}
	if !status.HasEnded {
		status.TimeLeftSeconds = int64(intent.AuctionEndTime.Sub(now).Seconds())
	}

	if e.IsRunning() {
		tracked, err := e.tracked(ctx, models.KeyOf(chainID, intentID))
		if err == nil && tracked != nil {
			status.Tracked = tracked
			status.IsBeingProcessed = true
		}
	}
	return status, nil
}

// FinalizeAuction ends an auction on demand once its end time has passed. A
// tracked intent is handed to its task, which finalizes and deposits when we
// won; otherwise the auction is finalized directly. The receipt is nil when a
// task took over.
func (e *Engine) FinalizeAuction(ctx context.Context, chainID int, intentID *big.Int) (*models.Receipt, error) {
	c, err := e.client(chainID)
	if err != nil {
		return nil, err
	}
	intent, err := c.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.AuctionOpen(e.clock.Now()) {
		return nil, fmt.Errorf("auction of intent %s ends at %s: %w", intentID, intent.AuctionEndTime.Format(time.RFC3339), ledger.ErrAuctionActive)
	}

	if e.IsRunning() {
		handed := false
		err := e.query(ctx, func(active map[models.IntentKey]*trackedIntent) {
			if t, ok := active[models.KeyOf(chainID, intentID)]; ok {
				t.signalEnd()
				handed = true
			}
		})
		if err == nil && handed {
			e.logger.InfoWithChain(chainID, "Auction end of intent %s requested", intentID)
			return nil, nil
		}
	}

	receipt, err := c.FinalizeAuction(ctx, intentID)
	if err != nil {
		return nil, err
	}
	e.logger.InfoWithChain(chainID, "Finalized auction of intent %s on request", intentID)
	return receipt, nil
}

// Status reports every chain the engine works on
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	status := &Status{
		Running: e.IsRunning(),
		Paused:  e.IsPaused(),
	}

	// balances are reported for the tokens of the intents in flight
	tokens := make(map[int]map[common.Address]struct{})
	addToken := func(chainID int, token common.Address) {
		if token == (common.Address{}) {
			return
		}
		if tokens[chainID] == nil {
			tokens[chainID] = make(map[common.Address]struct{})
		}
		tokens[chainID][token] = struct{}{}
	}
	if status.Running {
		active, err := e.ActiveIntents(ctx)
		if err == nil {
			status.ActiveIntents = len(active)
			for _, s := range active {
				addToken(s.Intent.OriginChainID, s.Intent.SourceToken)
				addToken(s.DestinationChainID, s.Intent.DestinationToken)
			}
		}
	}

	ids := make([]int, 0, len(e.clients))
	for id := range e.clients {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, chainID := range ids {
		c := e.clients[chainID]
		cs := ChainStatus{
			ChainID:            chainID,
			Name:               chains.GetChainName(chainID),
			SolverAddress:      c.Address(),
			DestinationChainID: e.cfg.RoutePairs[chainID],
			Balances:           make(map[string]string),
		}
		if p, ok := e.pollers[chainID]; ok {
			cs.LastProcessedBlock = p.lastProcessedBlock.Load()
		}
		if cb, ok := e.breakers[chainID]; ok {
			state := cb.GetState()
			cs.CircuitBreaker = &state
		}
		head, err := c.BlockNumber(ctx)
		if err != nil {
			cs.Error = err.Error()
		}
		cs.HeadBlock = head
		for token := range tokens[chainID] {
			balance, err := c.TokenBalance(ctx, token, c.Address())
			if err != nil {
				cs.Error = err.Error()
				continue
			}
			cs.Balances[token.Hex()] = balance.String()
		}
		status.Chains = append(status.Chains, cs)
	}
	return status, nil
}

// ResetCircuit closes the breaker of one chain, or of every chain when chainID is 0
func (e *Engine) ResetCircuit(chainID int) error {
	if chainID == 0 {
		for _, cb := range e.breakers {
			cb.Reset()
		}
		return nil
	}
	cb, ok := e.breakers[chainID]
	if !ok {
		return fmt.Errorf("no circuit breaker for chain %d", chainID)
	}
	cb.Reset()
	return nil
}
