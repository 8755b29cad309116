package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// IntentCreatedEvent is emitted when a user opens a new intent
type IntentCreatedEvent struct {
	ChainID                   int
	IntentID                  *big.Int
	User                      common.Address
	SourceToken               common.Address
	DestinationToken          common.Address
	SourceAmount              *big.Int
	ExpectedDestinationAmount *big.Int
	Reward                    *big.Int
	AuctionEndTime            time.Time
	BlockNumber               uint64
	TxHash                    common.Hash
}

// Intent converts the creation event into an intent snapshot in the Created state
func (e *IntentCreatedEvent) Intent() *Intent {
	return &Intent{
		ID:                        e.IntentID,
		OriginChainID:             e.ChainID,
		User:                      e.User,
		SourceToken:               e.SourceToken,
		DestinationToken:          e.DestinationToken,
		SourceAmount:              e.SourceAmount,
		ExpectedDestinationAmount: e.ExpectedDestinationAmount,
		Reward:                    e.Reward,
		AuctionEndTime:            e.AuctionEndTime,
		State:                     StateCreated,
		WinningBid:                new(big.Int),
	}
}

// BidPlacedEvent is emitted for every accepted bid
type BidPlacedEvent struct {
	ChainID     int
	IntentID    *big.Int
	Solver      common.Address
	Amount      *big.Int
	Timestamp   time.Time
	BlockNumber uint64
}

// IntentWonEvent is emitted when an auction is finalized
type IntentWonEvent struct {
	ChainID     int
	IntentID    *big.Int
	Winner      common.Address
	Amount      *big.Int
	BlockNumber uint64
}
