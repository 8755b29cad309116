package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// Client is the per-chain view of an intent ledger bound to one signing identity.
// Transaction methods return once the transaction is confirmed; a revert is an error.
type Client interface {
	ChainID() int
	// Address is the signer every transaction is sent from
	Address() common.Address
	// ContractAddress is the ledger contract, the spender of token approvals
	ContractAddress() common.Address

	BlockNumber(ctx context.Context) (uint64, error)
	IntentCreatedEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*models.IntentCreatedEvent, error)
	IntentWonEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*models.IntentWonEvent, error)

	GetIntent(ctx context.Context, intentID *big.Int) (*models.Intent, error)
	GetHighestBid(ctx context.Context, intentID *big.Int) (*models.Bid, error)
	IsIntentSolvedOnChain2(ctx context.Context, intentID *big.Int) (bool, error)
	IsAuthorizedRelayer(ctx context.Context, relayer common.Address) (bool, error)
	LatestIntentID(ctx context.Context) (*big.Int, error)

	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	ApproveToken(ctx context.Context, token, spender common.Address, amount *big.Int) (*models.Receipt, error)

	CreateIntent(ctx context.Context, params CreateIntentParams) (*big.Int, *models.Receipt, error)
	CancelIntent(ctx context.Context, intentID *big.Int) (*models.Receipt, error)
	PlaceBid(ctx context.Context, intentID, amount *big.Int) (*models.Receipt, error)
	FinalizeAuction(ctx context.Context, intentID *big.Int) (*models.Receipt, error)
	DepositAndPickup(ctx context.Context, intentID *big.Int) (*models.Receipt, error)
	SolveIntentOnChain2(ctx context.Context, params SolveParams) (*models.Receipt, error)
	SettleIntentWithChain2Verification(ctx context.Context, intentID, chain2IntentID *big.Int) (*models.Receipt, error)
}

// CreateIntentParams are the arguments of createIntent
type CreateIntentParams struct {
	SourceToken               common.Address
	DestinationToken          common.Address
	SourceAmount              *big.Int
	ExpectedDestinationAmount *big.Int
	Reward                    *big.Int
	AuctionDuration           time.Duration
}

// SolveParams are the arguments of solveIntentOnChain2
type SolveParams struct {
	IntentID   *big.Int
	User       common.Address
	Token      common.Address
	Amount     *big.Int
	Recipients []common.Address
	Amounts    []*big.Int
}
