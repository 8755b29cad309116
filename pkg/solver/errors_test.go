package solver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/relayerclient"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retry     bool
		errorType string
	}{
		{"already solved", fmt.Errorf("solve: %w", ledger.ErrAlreadySolved), false, errAlreadyProcessed},
		{"already completed", ledger.ErrAlreadyCompleted, false, errAlreadyProcessed},
		{"already finalized", ledger.ErrAlreadyFinalized, false, errAlreadyProcessed},
		{"insufficient balance", fmt.Errorf("delivery: %w", ledger.ErrInsufficientBalance), false, errInsufficientBalance},
		{"ledger revert", ledger.ErrBidTooLow, false, errContract},
		{"rpc revert", ledger.MatchRevert(errors.New("execution reverted: Auction ended")), false, errContract},
		{"unknown revert", errors.New("execution reverted: custom"), false, errContract},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), true, errNetwork},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true, errNetwork},
		{"node state", errors.New("missing trie node abc"), true, errNodeState},
		{"nonce", errors.New("nonce too low"), true, errNonce},
		{"gas", errors.New("gas price too low"), true, errGas},
		{"gas cap", errors.New("gas price 9 exceeds maximum 5"), true, errGas},
		{"relayer already completed", &relayerclient.APIError{StatusCode: 409, Code: "AlreadyCompleted"}, false, errAlreadyProcessed},
		{"relayer state conflict", &relayerclient.APIError{StatusCode: 409, Code: "NotSolved"}, false, errRelayer},
		{"relayer upstream failure", &relayerclient.APIError{StatusCode: 502, Code: "RPCFailure"}, true, errRelayer},
		{"relayer proof timeout", &relayerclient.APIError{StatusCode: 504, Code: "ProofTimeout"}, false, errRelayer},
		{"unknown", errors.New("something odd"), true, errUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry, errorType := classifyError(tt.err)
			assert.Equal(t, tt.retry, retry)
			assert.Equal(t, tt.errorType, errorType)
		})
	}
}
