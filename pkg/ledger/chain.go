package ledger

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

const (
	// DefaultCancelGrace is how long after auction end an unfinalized intent stays claimable
	DefaultCancelGrace = time.Hour

	// DefaultDepositGrace is how long after auction end the winner may still deposit
	DefaultDepositGrace = time.Hour

	gasPerTx = 21000
)

// Options configures an in-memory ledger
type Options struct {
	ChainID      int
	Owner        common.Address
	Clock        Clock
	CancelGrace  time.Duration
	DepositGrace time.Duration
}

// Event is an entry of the ledger's event log
type Event struct {
	Name        string
	IntentID    *big.Int
	Account     common.Address
	Amount      *big.Int
	BlockNumber uint64
	TxHash      common.Hash
}

type intentRecord struct {
	intent    models.Intent
	highest   models.Bid
	chain2ID  *big.Int
	createdAt time.Time
}

// Chain is an in-memory intent ledger with ERC20-like token balances. It enforces the
// same state machine as the deployed contract and is safe for concurrent use.
type Chain struct {
	mu           sync.Mutex
	chainID      int
	contract     common.Address
	owner        common.Address
	clock        Clock
	cancelGrace  time.Duration
	depositGrace time.Duration

	counter  uint64
	intents  map[string]*intentRecord
	order    []*big.Int
	solved   map[string]bool
	relayers map[common.Address]bool

	tokens     map[common.Address]string
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int

	block   uint64
	events  []Event
	created []*models.IntentCreatedEvent
	won     []*models.IntentWonEvent
}

// NewChain creates an empty ledger
func NewChain(opts Options) *Chain {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.CancelGrace == 0 {
		opts.CancelGrace = DefaultCancelGrace
	}
	if opts.DepositGrace == 0 {
		opts.DepositGrace = DefaultDepositGrace
	}
	contract := crypto.CreateAddress(common.BigToAddress(big.NewInt(int64(opts.ChainID))), 0)
	return &Chain{
		chainID:      opts.ChainID,
		contract:     contract,
		owner:        opts.Owner,
		clock:        opts.Clock,
		cancelGrace:  opts.CancelGrace,
		depositGrace: opts.DepositGrace,
		intents:      make(map[string]*intentRecord),
		solved:       make(map[string]bool),
		relayers:     make(map[common.Address]bool),
		tokens:       make(map[common.Address]string),
		balances:     make(map[common.Address]map[common.Address]*big.Int),
		allowances:   make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
	}
}

// ChainID returns the chain id the ledger mints intent ids for
func (c *Chain) ChainID() int {
	return c.chainID
}

// ContractAddress is the escrow account of the ledger
func (c *Chain) ContractAddress() common.Address {
	return c.contract
}

// As binds a caller identity to the ledger
func (c *Chain) As(caller common.Address) *Session {
	return &Session{chain: c, caller: caller}
}

// DeployToken registers a new token and returns its address
func (c *Chain) DeployToken(symbol string) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr := crypto.CreateAddress(c.contract, uint64(len(c.tokens)+1))
	c.tokens[addr] = symbol
	c.balances[addr] = make(map[common.Address]*big.Int)
	c.allowances[addr] = make(map[common.Address]map[common.Address]*big.Int)
	return addr
}

// TokenSymbol returns the symbol of a registered token
func (c *Chain) TokenSymbol(token common.Address) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[token]
}

// Mint credits tokens to an account
func (c *Chain) Mint(token, to common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tokens[token]; !ok {
		return fmt.Errorf("unknown token %s", token.Hex())
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	c.credit(token, to, amount)
	return nil
}

// BalanceOf returns the token balance of an account
func (c *Chain) BalanceOf(token, owner common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceOf(token, owner)
}

// EscrowBalance returns the amount of a token held by the ledger contract
func (c *Chain) EscrowBalance(token common.Address) *big.Int {
	return c.BalanceOf(token, c.contract)
}

// Events returns a copy of the event log
func (c *Chain) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// BlockNumber returns the number of the last mined block
func (c *Chain) BlockNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block
}

// ActiveIntents returns ids of intents that are neither completed nor cancelled
func (c *Chain) ActiveIntents() []*big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []*big.Int
	for _, id := range c.order {
		if !c.intents[id.String()].intent.State.IsTerminal() {
			ids = append(ids, new(big.Int).Set(id))
		}
	}
	return ids
}

// token helpers, callers hold c.mu

func (c *Chain) balanceOf(token, owner common.Address) *big.Int {
	if bal, ok := c.balances[token][owner]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

func (c *Chain) credit(token, to common.Address, amount *big.Int) {
	bal, ok := c.balances[token][to]
	if !ok {
		bal = new(big.Int)
		c.balances[token][to] = bal
	}
	bal.Add(bal, amount)
}

func (c *Chain) allowance(token, owner, spender common.Address) *big.Int {
	if a, ok := c.allowances[token][owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

func (c *Chain) approve(token, owner, spender common.Address, amount *big.Int) error {
	if _, ok := c.tokens[token]; !ok {
		return ErrInvalidToken
	}
	if c.allowances[token][owner] == nil {
		c.allowances[token][owner] = make(map[common.Address]*big.Int)
	}
	c.allowances[token][owner][spender] = new(big.Int).Set(amount)
	return nil
}

// checkPull verifies that the contract may pull amount from owner
func (c *Chain) checkPull(token, owner common.Address, amount *big.Int) error {
	if _, ok := c.tokens[token]; !ok {
		return ErrInvalidToken
	}
	if c.balanceOf(token, owner).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if c.allowance(token, owner, c.contract).Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	return nil
}

// pull moves amount from owner to to, spending the contract's allowance; checkPull must pass first
func (c *Chain) pull(token, owner, to common.Address, amount *big.Int) {
	c.balances[token][owner].Sub(c.balances[token][owner], amount)
	c.allowances[token][owner][c.contract].Sub(c.allowances[token][owner][c.contract], amount)
	c.credit(token, to, amount)
}

// release pays out of escrow
func (c *Chain) release(token, to common.Address, amount *big.Int) {
	escrow := c.balances[token][c.contract]
	escrow.Sub(escrow, amount)
	c.credit(token, to, amount)
}

// mine opens a new block for a transaction
func (c *Chain) mine(method string, caller common.Address) *models.Receipt {
	c.block++
	hash := crypto.Keccak256Hash(
		big.NewInt(int64(c.chainID)).Bytes(),
		new(big.Int).SetUint64(c.block).Bytes(),
		caller.Bytes(),
		[]byte(method),
	)
	return &models.Receipt{
		TxHash:      hash,
		BlockNumber: c.block,
		GasUsed:     gasPerTx,
		Status:      1,
	}
}

func (c *Chain) emit(receipt *models.Receipt, name string, intentID *big.Int, account common.Address, amount *big.Int) {
	c.events = append(c.events, Event{
		Name:        name,
		IntentID:    copyInt(intentID),
		Account:     account,
		Amount:      copyInt(amount),
		BlockNumber: receipt.BlockNumber,
		TxHash:      receipt.TxHash,
	})
}

func (c *Chain) lookup(intentID *big.Int) (*intentRecord, error) {
	if intentID == nil {
		return nil, ErrIntentNotFound
	}
	rec, ok := c.intents[intentID.String()]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return rec, nil
}

func (c *Chain) createdBetween(from, to uint64) []*models.IntentCreatedEvent {
	var out []*models.IntentCreatedEvent
	for _, ev := range c.created {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out
}

func (c *Chain) wonBetween(from, to uint64) []*models.IntentWonEvent {
	var out []*models.IntentWonEvent
	for _, ev := range c.won {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out
}

func (c *Chain) sortedRelayers() []common.Address {
	out := make([]common.Address, 0, len(c.relayers))
	for addr := range c.relayers {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneIntent(in *models.Intent) *models.Intent {
	out := *in
	out.ID = copyInt(in.ID)
	out.SourceAmount = copyInt(in.SourceAmount)
	out.ExpectedDestinationAmount = copyInt(in.ExpectedDestinationAmount)
	out.Reward = copyInt(in.Reward)
	out.WinningBid = copyInt(in.WinningBid)
	return &out
}
