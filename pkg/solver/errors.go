package solver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/relayerclient"
)

// Error types reported in metrics and logs
const (
	errAlreadyProcessed    = "already_processed"
	errNetwork             = "network_error"
	errNodeState           = "node_state_error"
	errGas                 = "gas_error"
	errNonce               = "nonce_error"
	errInsufficientBalance = "insufficient_balance"
	errContract            = "contract_error"
	errRelayer             = "relayer_error"
	errUnknown             = "unknown_error"
)

// errAbandoned stops an intent task without counting as a failure
var errAbandoned = errors.New("intent abandoned")

// classifyError decides whether a failed step may be retried
// Returns (shouldRetry, errorType)
func classifyError(err error) (bool, string) {
	if errors.Is(err, ledger.ErrAlreadySolved) ||
		errors.Is(err, ledger.ErrAlreadyCompleted) ||
		errors.Is(err, ledger.ErrAlreadyFinalized) {
		return false, errAlreadyProcessed
	}
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		return false, errInsufficientBalance
	}
	// a state revert is final for this attempt; the next tick re-reads the ledger
	if ledger.IsRevert(err) {
		return false, errContract
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, errNetwork
	}

	var apiErr *relayerclient.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == "AlreadyCompleted":
			return false, errAlreadyProcessed
		case apiErr.StatusCode == http.StatusGatewayTimeout:
			return false, errRelayer
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return true, errRelayer
		default:
			return false, errRelayer
		}
	}

	errStr := err.Error()

	// Network/RPC errors - retry is appropriate
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "no response") ||
		strings.Contains(errStr, "EOF") {
		return true, errNetwork
	}

	// RPC node state errors
	if strings.Contains(errStr, "missing trie node") ||
		strings.Contains(errStr, "receipt not found") ||
		strings.Contains(errStr, "block not found") {
		return true, errNodeState
	}

	// Gas-related errors - retry may help if gas prices change
	if strings.Contains(errStr, "gas required exceeds allowance") ||
		strings.Contains(errStr, "insufficient funds for gas") ||
		strings.Contains(errStr, "gas price too low") ||
		strings.Contains(errStr, "exceeds maximum") {
		return true, errGas
	}

	// Nonce-related errors - retry may help after nonce is corrected
	if strings.Contains(errStr, "nonce too low") ||
		strings.Contains(errStr, "nonce too high") ||
		strings.Contains(errStr, "replacement transaction underpriced") {
		return true, errNonce
	}

	if strings.Contains(errStr, "insufficient balance") ||
		strings.Contains(errStr, "insufficient funds") {
		return false, errInsufficientBalance
	}

	if strings.Contains(errStr, "execution reverted") ||
		strings.Contains(errStr, "invalid opcode") ||
		strings.Contains(errStr, "out of gas") {
		return false, errContract
	}

	// Unknown errors - retry with caution
	return true, errUnknown
}
