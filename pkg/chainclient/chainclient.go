package chainclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/speedrun-hq/speedrun-intents/pkg/blockchain"
	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/contracts"
	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/metrics"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

const (
	// DefaultRPCTimeout bounds every read call
	DefaultRPCTimeout = 30 * time.Second

	// DefaultReceiptTimeout bounds the wait for a transaction to be mined
	DefaultReceiptTimeout = 2 * time.Minute

	gasPriceTimeout = 10 * time.Second
)

// Backend is the RPC surface the client needs. *ethclient.Client and the
// simulated backend client both satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Options tunes a client; zero values select defaults
type Options struct {
	GasMultiplier  float64
	MaxGasPrice    *big.Int
	RPCTimeout     time.Duration
	ReceiptTimeout time.Duration
	Nonces         *blockchain.NonceManager
	Logger         logger.Logger
}

// Client contains client and config information for a specific blockchain
type Client struct {
	chainID       int
	rpcURL        string
	backend       Backend
	contract      *contracts.BridgeIntent
	contractAddr  common.Address
	auth          *bind.TransactOpts
	gasMultiplier float64
	maxGasPrice   *big.Int

	rpcTimeout     time.Duration
	receiptTimeout time.Duration

	nonces     *blockchain.NonceManager
	allowances *AllowanceCache
	logger     logger.Logger

	// txMu serializes transactions of the signer on this chain
	txMu sync.Mutex

	mu              sync.RWMutex
	currentGasPrice *big.Int
	tokens          map[common.Address]*contracts.ERC20
}

var _ ledger.Client = (*Client)(nil)

// New dials the chain RPC and binds the intent contract
func New(ctx context.Context, chain config.ChainConfig, privateKey string, opts Options) (*Client, error) {
	backend, err := ethclient.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain %d: %v", chain.ChainID, err)
	}
	if opts.GasMultiplier == 0 {
		opts.GasMultiplier = chain.GasMultiplier
	}
	client, err := NewWithBackend(ctx, chain.ChainID, backend, common.HexToAddress(chain.IntentAddress), privateKey, opts)
	if err != nil {
		backend.Close()
		return nil, err
	}
	client.rpcURL = chain.RPCURL
	return client, nil
}

// NewWithBackend creates a client over an already connected backend
func NewWithBackend(
	ctx context.Context,
	chainID int,
	backend Backend,
	intentAddress common.Address,
	privateKey string,
	opts Options,
) (*Client, error) {
	if opts.GasMultiplier <= 0 {
		opts.GasMultiplier = config.DefaultGasMultiplier
	}
	if opts.RPCTimeout <= 0 {
		opts.RPCTimeout = DefaultRPCTimeout
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = DefaultReceiptTimeout
	}
	if opts.Logger == nil {
		opts.Logger = &logger.EmptyLogger{}
	}
	if opts.Nonces == nil {
		opts.Nonces = blockchain.NewNonceManager(opts.Logger)
	}

	auth, err := createAuthenticator(ctx, backend, chainID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %v", err)
	}

	contract, err := contracts.NewBridgeIntent(intentAddress, backend)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize contract: %v", err)
	}

	return &Client{
		chainID:        chainID,
		backend:        backend,
		contract:       contract,
		contractAddr:   intentAddress,
		auth:           auth,
		gasMultiplier:  opts.GasMultiplier,
		maxGasPrice:    opts.MaxGasPrice,
		rpcTimeout:     opts.RPCTimeout,
		receiptTimeout: opts.ReceiptTimeout,
		nonces:         opts.Nonces,
		allowances:     NewAllowanceCache(DefaultAllowanceTTL),
		logger:         opts.Logger,
		tokens:         make(map[common.Address]*contracts.ERC20),
	}, nil
}

// Helper function to create authenticator
func createAuthenticator(ctx context.Context, backend Backend, expectedChainID int, privateKeyHex string) (*bind.TransactOpts, error) {
	privateKey, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}
	if expectedChainID != 0 && chainID.Int64() != int64(expectedChainID) {
		return nil, fmt.Errorf("rpc reports chain %s, configured chain is %d", chainID, expectedChainID)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %v", err)
	}
	return auth, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if len(hexKey) > 1 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}
	return key, nil
}

// Close releases the RPC connection when the client owns one
func (c *Client) Close() {
	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (c *Client) ChainID() int {
	return c.chainID
}

func (c *Client) Address() common.Address {
	return c.auth.From
}

func (c *Client) ContractAddress() common.Address {
	return c.contractAddr
}

// RPCURL returns the endpoint the client was dialed with, empty for injected backends
func (c *Client) RPCURL() string {
	return c.rpcURL
}

// UpdateGasPrice updates the gas price based on current network conditions
func (c *Client) UpdateGasPrice(ctx context.Context) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, gasPriceTimeout)
	defer cancel()

	gasPrice, err := c.backend.SuggestGasPrice(timeoutCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %v", err)
	}

	// Apply gas multiplier (e.g. 1.1 = 10% buffer)
	multiplied := new(big.Float).Mul(new(big.Float).SetInt(gasPrice), big.NewFloat(c.gasMultiplier))
	finalGasPrice, _ := multiplied.Int(nil)

	if !c.IsWithinMax(finalGasPrice) {
		c.logger.NoticeWithChain(c.chainID, "Gas price %s above maximum %s, capping", finalGasPrice, c.maxGasPrice)
		finalGasPrice = new(big.Int).Set(c.maxGasPrice)
	}

	c.mu.Lock()
	c.currentGasPrice = finalGasPrice
	c.mu.Unlock()

	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(finalGasPrice), big.NewFloat(1e9)).Float64()
	metrics.GasPrice.WithLabelValues(strconv.Itoa(c.chainID)).Set(gwei)

	return new(big.Int).Set(finalGasPrice), nil
}

// IsWithinMax reports whether a gas price respects the configured cap
func (c *Client) IsWithinMax(gasPrice *big.Int) bool {
	return c.maxGasPrice == nil || c.maxGasPrice.Sign() == 0 || gasPrice.Cmp(c.maxGasPrice) <= 0
}

// CurrentGasPrice returns the last refreshed gas price, nil before the first refresh
func (c *Client) CurrentGasPrice() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentGasPrice == nil {
		return nil
	}
	return new(big.Int).Set(c.currentGasPrice)
}

func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	if price := c.CurrentGasPrice(); price != nil {
		return price, nil
	}
	return c.UpdateGasPrice(ctx)
}

func (c *Client) callOpts(ctx context.Context) (*bind.CallOpts, context.CancelFunc) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	return &bind.CallOpts{Context: timeoutCtx, From: c.auth.From}, cancel
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer cancel()
	return c.backend.BlockNumber(timeoutCtx)
}

func (c *Client) IntentCreatedEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*models.IntentCreatedEvent, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer cancel()

	it, err := c.contract.FilterIntentCreated(&bind.FilterOpts{Start: fromBlock, End: &toBlock, Context: timeoutCtx}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to filter IntentCreated events: %w", err)
	}
	defer it.Close()

	var events []*models.IntentCreatedEvent
	for it.Next() {
		ev := it.Event
		events = append(events, &models.IntentCreatedEvent{
			ChainID:                   c.chainID,
			IntentID:                  ev.IntentId,
			User:                      ev.User,
			SourceToken:               ev.TokenA,
			DestinationToken:          ev.TokenB,
			SourceAmount:              ev.AmountA,
			ExpectedDestinationAmount: ev.ExpectedAmountB,
			Reward:                    ev.Reward,
			AuctionEndTime:            unixTime(ev.EndTime),
			BlockNumber:               ev.Raw.BlockNumber,
			TxHash:                    ev.Raw.TxHash,
		})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate IntentCreated events: %w", err)
	}
	return events, nil
}

func (c *Client) IntentWonEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*models.IntentWonEvent, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer cancel()

	it, err := c.contract.FilterIntentWon(&bind.FilterOpts{Start: fromBlock, End: &toBlock, Context: timeoutCtx}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to filter IntentWon events: %w", err)
	}
	defer it.Close()

	var events []*models.IntentWonEvent
	for it.Next() {
		events = append(events, &models.IntentWonEvent{
			ChainID:     c.chainID,
			IntentID:    it.Event.IntentId,
			Winner:      it.Event.Winner,
			Amount:      it.Event.Amount,
			BlockNumber: it.Event.Raw.BlockNumber,
		})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate IntentWon events: %w", err)
	}
	return events, nil
}

func (c *Client) GetIntent(ctx context.Context, intentID *big.Int) (*models.Intent, error) {
	opts, cancel := c.callOpts(ctx)
	defer cancel()

	details, err := c.contract.GetIntentDetails(opts, intentID)
	if err != nil {
		return nil, ledger.MatchRevert(err)
	}
	if details.User == (common.Address{}) {
		return nil, ledger.ErrIntentNotFound
	}

	origin := models.OriginChainOf(intentID)
	if origin == 0 {
		origin = c.chainID
	}
	return &models.Intent{
		ID:                        new(big.Int).Set(intentID),
		OriginChainID:             origin,
		User:                      details.User,
		SourceToken:               details.TokenA,
		DestinationToken:          details.TokenB,
		SourceAmount:              details.AmountA,
		ExpectedDestinationAmount: details.ExpectedAmountB,
		Reward:                    details.Reward,
		AuctionEndTime:            unixTime(details.EndTime),
		State:                     models.IntentState(details.State),
		WinningSolver:             details.WinningSolver,
		WinningBid:                details.WinningBid,
	}, nil
}

func (c *Client) GetHighestBid(ctx context.Context, intentID *big.Int) (*models.Bid, error) {
	opts, cancel := c.callOpts(ctx)
	defer cancel()

	bid, err := c.contract.GetHighestBid(opts, intentID)
	if err != nil {
		return nil, ledger.MatchRevert(err)
	}
	amount := bid.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return &models.Bid{
		IntentID: new(big.Int).Set(intentID),
		Solver:   bid.Bidder,
		Amount:   amount,
	}, nil
}

func (c *Client) IsIntentSolvedOnChain2(ctx context.Context, intentID *big.Int) (bool, error) {
	opts, cancel := c.callOpts(ctx)
	defer cancel()

	solved, err := c.contract.IsIntentSolvedOnChain2(opts, intentID)
	if err != nil {
		return false, ledger.MatchRevert(err)
	}
	return solved, nil
}

func (c *Client) IsAuthorizedRelayer(ctx context.Context, relayer common.Address) (bool, error) {
	opts, cancel := c.callOpts(ctx)
	defer cancel()
	return c.contract.AuthorizedRelayers(opts, relayer)
}

func (c *Client) LatestIntentID(ctx context.Context) (*big.Int, error) {
	opts, cancel := c.callOpts(ctx)
	defer cancel()
	return c.contract.GetLatestIntentId(opts)
}

// ActiveIntents lists ids the contract still considers open
func (c *Client) ActiveIntents(ctx context.Context) ([]*big.Int, error) {
	opts, cancel := c.callOpts(ctx)
	defer cancel()
	return c.contract.GetActiveIntents(opts)
}

func (c *Client) token(addr common.Address) (*contracts.ERC20, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token, ok := c.tokens[addr]; ok {
		return token, nil
	}
	token, err := contracts.NewERC20(addr, c.backend)
	if err != nil {
		return nil, fmt.Errorf("failed to bind token %s: %v", addr.Hex(), err)
	}
	c.tokens[addr] = token
	return token, nil
}

func (c *Client) TokenBalance(ctx context.Context, tokenAddr, owner common.Address) (*big.Int, error) {
	token, err := c.token(tokenAddr)
	if err != nil {
		return nil, err
	}
	opts, cancel := c.callOpts(ctx)
	defer cancel()
	return token.BalanceOf(opts, owner)
}

// TokenDecimals returns the decimals of a token
func (c *Client) TokenDecimals(ctx context.Context, tokenAddr common.Address) (uint8, error) {
	token, err := c.token(tokenAddr)
	if err != nil {
		return 0, err
	}
	opts, cancel := c.callOpts(ctx)
	defer cancel()
	return token.Decimals(opts)
}

func (c *Client) Allowance(ctx context.Context, tokenAddr, owner, spender common.Address) (*big.Int, error) {
	self := owner == c.auth.From
	if self {
		if cached, ok := c.allowances.Get(tokenAddr, spender); ok {
			return cached, nil
		}
	}

	token, err := c.token(tokenAddr)
	if err != nil {
		return nil, err
	}
	opts, cancel := c.callOpts(ctx)
	defer cancel()

	allowance, err := token.Allowance(opts, owner, spender)
	if err != nil {
		return nil, err
	}
	if self {
		c.allowances.Set(tokenAddr, spender, allowance)
	}
	return allowance, nil
}

func (c *Client) ApproveToken(ctx context.Context, tokenAddr, spender common.Address, amount *big.Int) (*models.Receipt, error) {
	token, err := c.token(tokenAddr)
	if err != nil {
		return nil, err
	}
	receipt, err := c.transact(ctx, "approve", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return token.Approve(opts, spender, amount)
	})
	if err != nil {
		c.allowances.Invalidate(tokenAddr)
		return nil, err
	}
	c.allowances.Set(tokenAddr, spender, amount)
	return receipt, nil
}

func (c *Client) CreateIntent(ctx context.Context, params ledger.CreateIntentParams) (*big.Int, *models.Receipt, error) {
	defer c.allowances.Invalidate(params.SourceToken)

	duration := big.NewInt(int64(params.AuctionDuration / time.Second))
	receipt, logs, err := c.transactWithLogs(ctx, "createIntent", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.CreateIntent(opts, params.SourceToken, params.DestinationToken,
			params.SourceAmount, params.ExpectedDestinationAmount, params.Reward, duration)
	})
	if err != nil {
		return nil, nil, err
	}

	for _, log := range logs {
		if log.Address != c.contractAddr || len(log.Topics) == 0 {
			continue
		}
		ev, err := c.contract.ParseIntentCreated(*log)
		if err == nil {
			return ev.IntentId, receipt, nil
		}
	}
	return nil, receipt, fmt.Errorf("transaction %s did not emit IntentCreated", receipt.TxHash.Hex())
}

func (c *Client) CancelIntent(ctx context.Context, intentID *big.Int) (*models.Receipt, error) {
	return c.transact(ctx, "cancelIntent", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.CancelIntent(opts, intentID)
	})
}

func (c *Client) PlaceBid(ctx context.Context, intentID, amount *big.Int) (*models.Receipt, error) {
	return c.transact(ctx, "placeBid", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.PlaceBid(opts, intentID, amount)
	})
}

func (c *Client) FinalizeAuction(ctx context.Context, intentID *big.Int) (*models.Receipt, error) {
	return c.transact(ctx, "finalizeAuction", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.FinalizeAuction(opts, intentID)
	})
}

func (c *Client) DepositAndPickup(ctx context.Context, intentID *big.Int) (*models.Receipt, error) {
	receipt, err := c.transact(ctx, "depositAndPickup", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.DepositAndPickup(opts, intentID)
	})
	c.allowances.Clear()
	return receipt, err
}

func (c *Client) SolveIntentOnChain2(ctx context.Context, params ledger.SolveParams) (*models.Receipt, error) {
	defer c.allowances.Invalidate(params.Token)
	return c.transact(ctx, "solveIntentOnChain2", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.SolveIntentOnChain2(opts, params.IntentID, params.User, params.Token,
			params.Amount, params.Recipients, params.Amounts)
	})
}

func (c *Client) SettleIntentWithChain2Verification(ctx context.Context, intentID, chain2IntentID *big.Int) (*models.Receipt, error) {
	return c.transact(ctx, "settleIntentWithChain2Verification", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.SettleIntentWithChain2Verification(opts, intentID, chain2IntentID)
	})
}

// AddRelayer authorizes a relayer; the signer must own the contract
func (c *Client) AddRelayer(ctx context.Context, relayer common.Address) (*models.Receipt, error) {
	return c.transact(ctx, "addRelayer", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.AddRelayer(opts, relayer)
	})
}

func (c *Client) transact(ctx context.Context, label string, send func(*bind.TransactOpts) (*types.Transaction, error)) (*models.Receipt, error) {
	receipt, _, err := c.transactWithLogs(ctx, label, send)
	return receipt, err
}

// transactWithLogs signs and sends one transaction, then waits for it to be mined.
// Sending is serialized per client so that nonces are handed out in order.
func (c *Client) transactWithLogs(
	ctx context.Context,
	label string,
	send func(*bind.TransactOpts) (*types.Transaction, error),
) (*models.Receipt, []*types.Log, error) {
	from := c.auth.From

	c.txMu.Lock()
	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		c.txMu.Unlock()
		return nil, nil, err
	}
	nonce, err := c.nonces.Reserve(ctx, c.chainID, c.backend, from)
	if err != nil {
		c.txMu.Unlock()
		return nil, nil, fmt.Errorf("failed to reserve nonce: %w", err)
	}

	opts := *c.auth
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(nonce)
	opts.GasPrice = gasPrice

	tx, err := send(&opts)
	if err != nil {
		c.nonces.MarkFailed(c.chainID, from, nonce)
		c.txMu.Unlock()
		return nil, nil, ledger.MatchRevert(err)
	}
	c.nonces.Track(c.chainID, from, nonce, tx.Hash(), label)
	c.txMu.Unlock()

	c.logger.DebugWithChain(c.chainID, "%s sent: tx=%s nonce=%d", label, tx.Hash().Hex(), nonce)

	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	mined, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed waiting for %s transaction %s: %w", label, tx.Hash().Hex(), err)
	}
	c.nonces.MarkConfirmed(c.chainID, from, nonce)
	metrics.GasUsed.WithLabelValues(strconv.Itoa(c.chainID), label).Observe(float64(mined.GasUsed))

	receipt := &models.Receipt{
		TxHash:      mined.TxHash,
		BlockNumber: mined.BlockNumber.Uint64(),
		GasUsed:     mined.GasUsed,
		Status:      mined.Status,
	}
	if mined.Status != types.ReceiptStatusSuccessful {
		return receipt, nil, fmt.Errorf("%s transaction %s mined in block %d: %w", label, tx.Hash().Hex(), receipt.BlockNumber, ledger.ErrReverted)
	}
	return receipt, mined.Logs, nil
}

func unixTime(v *big.Int) time.Time {
	if v == nil {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0)
}
