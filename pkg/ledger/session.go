package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// Session is a caller-bound handle on an in-memory ledger
type Session struct {
	chain  *Chain
	caller common.Address
}

var _ Client = (*Session)(nil)

func (s *Session) ChainID() int {
	return s.chain.chainID
}

func (s *Session) Address() common.Address {
	return s.caller
}

func (s *Session) ContractAddress() common.Address {
	return s.chain.contract
}

func (s *Session) BlockNumber(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.chain.BlockNumber(), nil
}

func (s *Session) IntentCreatedEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*models.IntentCreatedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	return s.chain.createdBetween(fromBlock, toBlock), nil
}

func (s *Session) IntentWonEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*models.IntentWonEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	return s.chain.wonBetween(fromBlock, toBlock), nil
}

func (s *Session) GetIntent(ctx context.Context, intentID *big.Int) (*models.Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.lookup(intentID)
	if err != nil {
		return nil, err
	}
	return cloneIntent(&rec.intent), nil
}

func (s *Session) GetHighestBid(ctx context.Context, intentID *big.Int) (*models.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.lookup(intentID)
	if err != nil {
		return nil, err
	}
	bid := rec.highest
	bid.IntentID = copyInt(rec.intent.ID)
	bid.Amount = copyInt(rec.highest.Amount)
	return &bid, nil
}

func (s *Session) IsIntentSolvedOnChain2(ctx context.Context, intentID *big.Int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if intentID == nil {
		return false, nil
	}
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	return s.chain.solved[intentID.String()], nil
}

func (s *Session) IsAuthorizedRelayer(ctx context.Context, relayer common.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	return s.chain.relayers[relayer], nil
}

// AuthorizedRelayers lists every registered relayer
func (s *Session) AuthorizedRelayers() []common.Address {
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	return s.chain.sortedRelayers()
}

func (s *Session) LatestIntentID(ctx context.Context) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	if len(s.chain.order) == 0 {
		return new(big.Int), nil
	}
	return copyInt(s.chain.order[len(s.chain.order)-1]), nil
}

// GetLocalIntentID strips the origin chain id from an intent id
func (s *Session) GetLocalIntentID(intentID *big.Int) *big.Int {
	return models.ExtractLocalID(intentID)
}

func (s *Session) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.chain.BalanceOf(token, owner), nil
}

func (s *Session) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	return s.chain.allowance(token, owner, spender), nil
}

func (s *Session) ApproveToken(ctx context.Context, token, spender common.Address, amount *big.Int) (*models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.approve(token, s.caller, spender, amount); err != nil {
		return nil, err
	}
	return c.mine("approve", s.caller), nil
}

// AddRelayer authorizes a relayer; only the ledger owner may call it
func (s *Session) AddRelayer(ctx context.Context, relayer common.Address) (*models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.caller != c.owner {
		return nil, ErrNotOwner
	}
	c.relayers[relayer] = true
	receipt := c.mine("addRelayer", s.caller)
	c.emit(receipt, "RelayerAdded", nil, relayer, nil)
	return receipt, nil
}

func (s *Session) CreateIntent(ctx context.Context, params CreateIntentParams) (*big.Int, *models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if params.SourceToken == (common.Address{}) || params.DestinationToken == (common.Address{}) {
		return nil, nil, ErrInvalidToken
	}
	if !positive(params.SourceAmount) || !positive(params.ExpectedDestinationAmount) ||
		params.Reward == nil || params.Reward.Sign() < 0 || params.AuctionDuration <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	escrow := new(big.Int).Add(params.SourceAmount, params.Reward)
	if err := c.checkPull(params.SourceToken, s.caller, escrow); err != nil {
		return nil, nil, err
	}
	c.pull(params.SourceToken, s.caller, c.contract, escrow)

	c.counter++
	id := models.ComposeIntentID(c.chainID, c.counter)
	now := c.clock.Now()
	rec := &intentRecord{
		intent: models.Intent{
			ID:                        id,
			OriginChainID:             c.chainID,
			User:                      s.caller,
			SourceToken:               params.SourceToken,
			DestinationToken:          params.DestinationToken,
			SourceAmount:              copyInt(params.SourceAmount),
			ExpectedDestinationAmount: copyInt(params.ExpectedDestinationAmount),
			Reward:                    copyInt(params.Reward),
			AuctionEndTime:            now.Add(params.AuctionDuration).Truncate(time.Second),
			State:                     models.StateCreated,
			WinningBid:                new(big.Int),
		},
		highest:   models.Bid{Amount: new(big.Int)},
		createdAt: now,
	}
	c.intents[id.String()] = rec
	c.order = append(c.order, id)

	receipt := c.mine("createIntent", s.caller)
	c.emit(receipt, "IntentCreated", id, s.caller, escrow)
	c.created = append(c.created, &models.IntentCreatedEvent{
		ChainID:                   c.chainID,
		IntentID:                  copyInt(id),
		User:                      s.caller,
		SourceToken:               params.SourceToken,
		DestinationToken:          params.DestinationToken,
		SourceAmount:              copyInt(params.SourceAmount),
		ExpectedDestinationAmount: copyInt(params.ExpectedDestinationAmount),
		Reward:                    copyInt(params.Reward),
		AuctionEndTime:            rec.intent.AuctionEndTime,
		BlockNumber:               receipt.BlockNumber,
		TxHash:                    receipt.TxHash,
	})
	return copyInt(id), receipt, nil
}

func (s *Session) PlaceBid(ctx context.Context, intentID, amount *big.Int) (*models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.lookup(intentID)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	if rec.intent.State != models.StateCreated || !rec.intent.AuctionOpen(now) {
		return nil, ErrAuctionEnded
	}
	if amount == nil || amount.Cmp(rec.intent.ExpectedDestinationAmount) < 0 || amount.Cmp(rec.highest.Amount) <= 0 {
		return nil, ErrBidTooLow
	}

	rec.highest = models.Bid{
		IntentID:  copyInt(rec.intent.ID),
		Solver:    s.caller,
		Amount:    copyInt(amount),
		Timestamp: now,
	}
	receipt := c.mine("placeBid", s.caller)
	c.emit(receipt, "BidPlaced", rec.intent.ID, s.caller, amount)
	return receipt, nil
}

func (s *Session) FinalizeAuction(ctx context.Context, intentID *big.Int) (*models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.lookup(intentID)
	if err != nil {
		return nil, err
	}
	if rec.intent.AuctionOpen(c.clock.Now()) {
		return nil, ErrAuctionActive
	}
	if rec.intent.State != models.StateCreated {
		return nil, ErrAlreadyFinalized
	}
	if !rec.highest.HasBid() {
		return nil, ErrNoBids
	}

	rec.intent.State = models.StateFinalized
	rec.intent.WinningSolver = rec.highest.Solver
	rec.intent.WinningBid = copyInt(rec.highest.Amount)

	receipt := c.mine("finalizeAuction", s.caller)
	c.emit(receipt, "IntentWon", rec.intent.ID, rec.highest.Solver, rec.highest.Amount)
	c.won = append(c.won, &models.IntentWonEvent{
		ChainID:     c.chainID,
		IntentID:    copyInt(rec.intent.ID),
		Winner:      rec.highest.Solver,
		Amount:      copyInt(rec.highest.Amount),
		BlockNumber: receipt.BlockNumber,
	})
	return receipt, nil
}

func (s *Session) DepositAndPickup(ctx context.Context, intentID *big.Int) (*models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.lookup(intentID)
	if err != nil {
		return nil, err
	}
	if rec.intent.State != models.StateFinalized {
		return nil, ErrNotFinalized
	}
	if rec.intent.WinningSolver != s.caller {
		return nil, ErrNotWinner
	}
	if !c.clock.Now().Before(rec.intent.AuctionEndTime.Add(c.depositGrace)) {
		return nil, ErrDepositWindowClosed
	}
	if err := c.checkPull(rec.intent.SourceToken, s.caller, rec.intent.WinningBid); err != nil {
		return nil, err
	}
	c.pull(rec.intent.SourceToken, s.caller, c.contract, rec.intent.WinningBid)
	rec.intent.State = models.StateDeposited

	receipt := c.mine("depositAndPickup", s.caller)
	c.emit(receipt, "SolverDeposited", rec.intent.ID, s.caller, rec.intent.WinningBid)
	return receipt, nil
}

// SettleIntent pays out an intent without recording a destination id
func (s *Session) SettleIntent(ctx context.Context, intentID *big.Int) (*models.Receipt, error) {
	return s.SettleIntentWithChain2Verification(ctx, intentID, intentID)
}

func (s *Session) SettleIntentWithChain2Verification(ctx context.Context, intentID, chain2IntentID *big.Int) (*models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.relayers[s.caller] {
		return nil, ErrNotAuthorizedRelayer
	}
	rec, err := c.lookup(intentID)
	if err != nil {
		return nil, err
	}
	if rec.intent.State == models.StateCompleted {
		return nil, ErrAlreadyCompleted
	}
	if rec.intent.State != models.StateDeposited {
		return nil, ErrNotDeposited
	}

	payout := rec.intent.SettlementPayout()
	c.release(rec.intent.SourceToken, rec.intent.WinningSolver, payout)
	rec.intent.State = models.StateCompleted
	rec.chain2ID = copyInt(chain2IntentID)

	receipt := c.mine("settleIntentWithChain2Verification", s.caller)
	c.emit(receipt, "IntentSettled", rec.intent.ID, rec.intent.WinningSolver, payout)
	c.emit(receipt, "IntentCompleted", rec.intent.ID, rec.intent.WinningSolver, nil)
	return receipt, nil
}

func (s *Session) CancelIntent(ctx context.Context, intentID *big.Int) (*models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.lookup(intentID)
	if err != nil {
		return nil, err
	}
	if rec.intent.User != s.caller {
		return nil, ErrNotIntentOwner
	}

	now := c.clock.Now()
	end := rec.intent.AuctionEndTime
	switch rec.intent.State {
	case models.StateCreated:
		// no winner was ever fixed
		if now.Before(end.Add(c.cancelGrace)) {
			return nil, ErrCannotCancel
		}
	case models.StateFinalized:
		// the winner missed its deposit window
		if now.Before(end.Add(c.depositGrace)) {
			return nil, ErrCannotCancel
		}
	case models.StateCompleted:
		return nil, ErrAlreadyCompleted
	default:
		return nil, ErrCannotCancel
	}

	refund := rec.intent.Escrow()
	c.release(rec.intent.SourceToken, rec.intent.User, refund)
	rec.intent.State = models.StateCancelled

	receipt := c.mine("cancelIntent", s.caller)
	c.emit(receipt, "IntentCancelled", rec.intent.ID, rec.intent.User, refund)
	return receipt, nil
}

func (s *Session) SolveIntentOnChain2(ctx context.Context, params SolveParams) (*models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params.IntentID == nil {
		return nil, ErrIntentNotFound
	}
	if len(params.Recipients) != len(params.Amounts) {
		return nil, ErrLengthMismatch
	}
	if len(params.Recipients) == 0 || !positive(params.Amount) {
		return nil, ErrInvalidAmount
	}
	for i, r := range params.Recipients {
		if r == (common.Address{}) {
			return nil, ErrInvalidRecipient
		}
		if params.Amounts[i] == nil || params.Amounts[i].Sign() < 0 {
			return nil, ErrInvalidAmount
		}
	}
	if models.SumAmounts(params.Amounts).Cmp(params.Amount) != 0 {
		return nil, ErrAmountMismatch
	}

	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()

	key := params.IntentID.String()
	if c.solved[key] {
		return nil, ErrAlreadySolved
	}
	// all-or-nothing: checked once for the total before any transfer
	if err := c.checkPull(params.Token, s.caller, params.Amount); err != nil {
		return nil, err
	}
	for i, r := range params.Recipients {
		c.pull(params.Token, s.caller, r, params.Amounts[i])
	}
	c.solved[key] = true

	receipt := c.mine("solveIntentOnChain2", s.caller)
	c.emit(receipt, "IntentSolvedOnChain2", params.IntentID, s.caller, params.Amount)
	return receipt, nil
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
