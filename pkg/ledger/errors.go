package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// RevertError is a ledger-side rejection carrying the contract revert reason
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

var (
	ErrInvalidToken          = &RevertError{"Invalid token addresses"}
	ErrInvalidAmount         = &RevertError{"Invalid amounts"}
	ErrIntentNotFound        = &RevertError{"Intent does not exist"}
	ErrAuctionEnded          = &RevertError{"Auction ended"}
	ErrBidTooLow             = &RevertError{"Bid too low"}
	ErrAuctionActive         = &RevertError{"Auction still active"}
	ErrNoBids                = &RevertError{"No bids placed"}
	ErrAlreadyFinalized      = &RevertError{"Auction already finalized"}
	ErrNotWinner             = &RevertError{"Not winning solver"}
	ErrNotFinalized          = &RevertError{"Auction not finalized"}
	ErrDepositWindowClosed   = &RevertError{"Deposit window closed"}
	ErrNotAuthorizedRelayer  = &RevertError{"Not authorized relayer"}
	ErrAlreadyCompleted      = &RevertError{"Intent already completed"}
	ErrNotDeposited          = &RevertError{"Solver has not deposited"}
	ErrNotIntentOwner        = &RevertError{"Not intent owner"}
	ErrCannotCancel          = &RevertError{"Cannot cancel intent"}
	ErrLengthMismatch        = &RevertError{"Array length mismatch"}
	ErrAmountMismatch        = &RevertError{"Amount mismatch"}
	ErrInvalidRecipient      = &RevertError{"Invalid recipient"}
	ErrAlreadySolved         = &RevertError{"Intent already solved"}
	ErrNotOwner              = &RevertError{"Not owner"}
	ErrInsufficientBalance   = &RevertError{"ERC20: transfer amount exceeds balance"}
	ErrInsufficientAllowance = &RevertError{"ERC20: insufficient allowance"}

	// ErrReverted marks a transaction that was mined with a failed status; the
	// receipt carries no reason
	ErrReverted = &RevertError{"transaction reverted"}
)

var knownReverts = []*RevertError{
	ErrInvalidToken,
	ErrInvalidAmount,
	ErrIntentNotFound,
	ErrAuctionEnded,
	ErrBidTooLow,
	ErrAuctionActive,
	ErrNoBids,
	ErrAlreadyFinalized,
	ErrNotWinner,
	ErrNotFinalized,
	ErrDepositWindowClosed,
	ErrNotAuthorizedRelayer,
	ErrAlreadyCompleted,
	ErrNotDeposited,
	ErrNotIntentOwner,
	ErrCannotCancel,
	ErrLengthMismatch,
	ErrAmountMismatch,
	ErrInvalidRecipient,
	ErrAlreadySolved,
	ErrNotOwner,
	ErrInsufficientBalance,
	ErrInsufficientAllowance,
}

// MatchRevert maps an RPC error carrying a revert reason onto the matching sentinel,
// so that callers can use errors.Is regardless of the ledger implementation.
// Errors without a known reason are returned unchanged.
func MatchRevert(err error) error {
	if err == nil {
		return nil
	}
	var revert *RevertError
	if errors.As(err, &revert) {
		return err
	}
	msg := err.Error()
	for _, known := range knownReverts {
		if strings.Contains(msg, known.Reason) {
			return fmt.Errorf("%w: %v", known, err)
		}
	}
	return err
}

// IsRevert reports whether the ledger itself rejected the call
func IsRevert(err error) bool {
	var revert *RevertError
	return errors.As(err, &revert)
}
