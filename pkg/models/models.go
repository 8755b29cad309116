package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// IntentState is the lifecycle state of an intent on its origin ledger
type IntentState uint8

const (
	StateCreated IntentState = iota
	StateFinalized
	StateDeposited
	StateCompleted
	StateCancelled
)

var stateNames = map[IntentState]string{
	StateCreated:   "created",
	StateFinalized: "finalized",
	StateDeposited: "deposited",
	StateCompleted: "completed",
	StateCancelled: "cancelled",
}

func (s IntentState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether no further transition is possible
func (s IntentState) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Intent is a cross-chain exchange offer as recorded on the origin ledger
type Intent struct {
	ID                        *big.Int       `json:"id"`
	OriginChainID             int            `json:"originChainId"`
	User                      common.Address `json:"user"`
	SourceToken               common.Address `json:"sourceToken"`
	DestinationToken          common.Address `json:"destinationToken"`
	SourceAmount              *big.Int       `json:"sourceAmount"`
	ExpectedDestinationAmount *big.Int       `json:"expectedDestinationAmount"`
	Reward                    *big.Int       `json:"reward"`
	AuctionEndTime            time.Time      `json:"auctionEndTime"`
	State                     IntentState    `json:"state"`
	WinningSolver             common.Address `json:"winningSolver"`
	WinningBid                *big.Int       `json:"winningBid"`
}

// Escrow returns the amount locked at creation: sourceAmount + reward
func (i *Intent) Escrow() *big.Int {
	return new(big.Int).Add(i.SourceAmount, i.Reward)
}

// SettlementPayout returns what the winning solver receives on settlement
func (i *Intent) SettlementPayout() *big.Int {
	payout := i.Escrow()
	if i.WinningBid != nil {
		payout.Add(payout, i.WinningBid)
	}
	return payout
}

// AuctionOpen reports whether bids are still accepted at the given time
func (i *Intent) AuctionOpen(now time.Time) bool {
	return now.Before(i.AuctionEndTime)
}

// Bid is the single retained highest bid of an intent
type Bid struct {
	IntentID  *big.Int       `json:"intentId"`
	Solver    common.Address `json:"solver"`
	Amount    *big.Int       `json:"amount"`
	Timestamp time.Time      `json:"timestamp"`
}

// HasBid reports whether any bid has been placed
func (b *Bid) HasBid() bool {
	return b != nil && b.Amount != nil && b.Amount.Sign() > 0
}

// RecipientManifest is the off-chain payout plan of an intent
type RecipientManifest struct {
	IntentID    string           `json:"intentId"`
	Recipients  []common.Address `json:"recipients"`
	Amounts     []*big.Int       `json:"amounts"`
	ChainID     int              `json:"chainId"`
	TotalAmount *big.Int         `json:"totalAmount"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Sum adds up all amounts of the manifest
func (m *RecipientManifest) Sum() *big.Int {
	return SumAmounts(m.Amounts)
}

// SumAmounts adds up a list of amounts, treating nil entries as zero
func SumAmounts(amounts []*big.Int) *big.Int {
	total := new(big.Int)
	for _, a := range amounts {
		if a != nil {
			total.Add(total, a)
		}
	}
	return total
}

// Receipt is the confirmed outcome of a ledger transaction
type Receipt struct {
	TxHash      common.Hash `json:"transactionHash"`
	BlockNumber uint64      `json:"blockNumber"`
	GasUsed     uint64      `json:"gasUsed"`
	Status      uint64      `json:"status"`
}

// Succeeded reports whether the transaction executed without revert
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}
