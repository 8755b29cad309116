package blockchain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
)

const (
	// DefaultSyncInterval is how long a local nonce counter is trusted before re-reading the chain
	DefaultSyncInterval = 5 * time.Minute

	// DefaultTxTimeout is how long a submitted transaction may stay unconfirmed
	DefaultTxTimeout = 5 * time.Minute
)

// NonceSource reads the next nonce of an account including pool transactions.
// Both *ethclient.Client and the simulated backend client satisfy it.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// TxStatus represents the status of a transaction
type TxStatus int

const (
	TxPending TxStatus = iota
	TxConfirmed
	TxFailed
	TxTimedOut
)

// TxRecord tracks a submitted transaction by nonce
type TxRecord struct {
	Hash      common.Hash
	Nonce     uint64
	Label     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    TxStatus
}

// account identifies one signer on one chain
type account struct {
	chainID int
	address common.Address
}

// accountNonces holds nonce data for a single signer
type accountNonces struct {
	next     uint64
	pending  map[uint64]*TxRecord
	lastSync time.Time
	mu       sync.Mutex
}

// NonceManager allocates nonces locally so that consecutive transactions from the
// same signer do not wait for each other, and re-syncs with the chain periodically
type NonceManager struct {
	accounts     map[account]*accountNonces
	mu           sync.Mutex
	syncInterval time.Duration
	txTimeout    time.Duration
	now          func() time.Time
	logger       logger.Logger
}

// NewNonceManager creates a new nonce manager
func NewNonceManager(logger logger.Logger) *NonceManager {
	return &NonceManager{
		accounts:     make(map[account]*accountNonces),
		syncInterval: DefaultSyncInterval,
		txTimeout:    DefaultTxTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// SetTransactionTimeout sets the timeout after which pending transactions are reported
func (nm *NonceManager) SetTransactionTimeout(timeout time.Duration) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.txTimeout = timeout
}

func (nm *NonceManager) account(chainID int, address common.Address) *accountNonces {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	key := account{chainID: chainID, address: address}
	data, ok := nm.accounts[key]
	if !ok {
		data = &accountNonces{pending: make(map[uint64]*TxRecord)}
		nm.accounts[key] = data
	}
	return data
}

// Reserve returns the next nonce for a signer, syncing with the chain first when the
// local counter is uninitialized or stale
func (nm *NonceManager) Reserve(ctx context.Context, chainID int, source NonceSource, address common.Address) (uint64, error) {
	data := nm.account(chainID, address)
	data.mu.Lock()
	defer data.mu.Unlock()

	if data.lastSync.IsZero() || nm.now().Sub(data.lastSync) > nm.syncInterval {
		if err := nm.syncLocked(ctx, chainID, source, address, data); err != nil {
			return 0, err
		}
	}

	nonce := data.next
	data.next++
	return nonce, nil
}

// Track records a submitted transaction against its nonce
func (nm *NonceManager) Track(chainID int, address common.Address, nonce uint64, txHash common.Hash, label string) {
	data := nm.account(chainID, address)
	data.mu.Lock()
	defer data.mu.Unlock()

	now := nm.now()
	data.pending[nonce] = &TxRecord{
		Hash:      txHash,
		Nonce:     nonce,
		Label:     label,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    TxPending,
	}
	nm.logger.DebugWithChain(chainID, "Tracking %s transaction with nonce %d: %s", label, nonce, txHash.Hex())
}

// MarkConfirmed removes a mined transaction from the pending set
func (nm *NonceManager) MarkConfirmed(chainID int, address common.Address, nonce uint64) bool {
	data := nm.account(chainID, address)
	data.mu.Lock()
	defer data.mu.Unlock()

	tx, ok := data.pending[nonce]
	if !ok {
		return false
	}
	tx.Status = TxConfirmed
	tx.UpdatedAt = nm.now()
	delete(data.pending, nonce)
	return true
}

// MarkFailed releases the nonce of a transaction that never made it on chain.
// The nonce is handed out again only when nothing below it is still pending and
// no later nonce was allocated; otherwise the next sync repairs the counter.
func (nm *NonceManager) MarkFailed(chainID int, address common.Address, nonce uint64) bool {
	data := nm.account(chainID, address)
	data.mu.Lock()
	defer data.mu.Unlock()

	delete(data.pending, nonce)

	if lowest, ok := lowestPending(data); ok && lowest < nonce {
		return false
	}
	if data.next == nonce+1 {
		data.next = nonce
		nm.logger.NoticeWithChain(chainID, "Reusing nonce %d after failed submission", nonce)
		return true
	}
	// a gap was left behind: force a resync before the next reservation
	data.lastSync = time.Time{}
	return false
}

// FindTimedOut returns the nonces of transactions pending for longer than the timeout
func (nm *NonceManager) FindTimedOut(chainID int, address common.Address) []uint64 {
	data := nm.account(chainID, address)
	data.mu.Lock()
	defer data.mu.Unlock()

	now := nm.now()
	var timedOut []uint64
	for nonce, tx := range data.pending {
		if tx.Status == TxPending && now.Sub(tx.CreatedAt) > nm.txTimeout {
			tx.Status = TxTimedOut
			tx.UpdatedAt = now
			nm.logger.ErrorWithChain(chainID, "Transaction %s timed out with nonce %d: %s", tx.Label, nonce, tx.Hash.Hex())
			timedOut = append(timedOut, nonce)
		}
	}
	sort.Slice(timedOut, func(i, j int) bool { return timedOut[i] < timedOut[j] })
	return timedOut
}

// Sync forces the local counter to catch up with the chain
func (nm *NonceManager) Sync(ctx context.Context, chainID int, source NonceSource, address common.Address) error {
	data := nm.account(chainID, address)
	data.mu.Lock()
	defer data.mu.Unlock()
	return nm.syncLocked(ctx, chainID, source, address, data)
}

func (nm *NonceManager) syncLocked(ctx context.Context, chainID int, source NonceSource, address common.Address, data *accountNonces) error {
	nonce, err := source.PendingNonceAt(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to get pending nonce: %w", err)
	}

	// the local counter may be ahead because of transactions not yet in the pool view
	if nonce > data.next || len(data.pending) == 0 {
		if nonce != data.next {
			nm.logger.DebugWithChain(chainID, "Updating nonce for %s: %d -> %d", address.Hex(), data.next, nonce)
		}
		data.next = nonce
	}
	data.lastSync = nm.now()
	return nil
}

// PendingCount returns the number of tracked unconfirmed transactions of a signer
func (nm *NonceManager) PendingCount(chainID int, address common.Address) int {
	data := nm.account(chainID, address)
	data.mu.Lock()
	defer data.mu.Unlock()
	return len(data.pending)
}

func lowestPending(data *accountNonces) (uint64, bool) {
	var lowest uint64
	found := false
	for nonce := range data.pending {
		if !found || nonce < lowest {
			lowest = nonce
			found = true
		}
	}
	return lowest, found
}
