package testutil

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// DefaultTestTimeout bounds a single test's blocking calls
	DefaultTestTimeout = 5 * time.Second

	// SimulatedChainID is the chain id used by the simulated backend
	SimulatedChainID = 1337
)

// SetupSimulation creates a simulated blockchain with one funded signer
func SetupSimulation(t *testing.T) (*simulated.Backend, *ecdsa.PrivateKey, common.Address) {
	t.Helper()

	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err, "Failed to generate private key")
	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	balance, _ := new(big.Int).SetString("10000000000000000000", 10) // 10 ETH
	//nolint:SA1019 // GenesisAccount alloc is what this go-ethereum version accepts
	genesisAlloc := map[common.Address]core.GenesisAccount{
		address: {Balance: balance},
	}

	sim := simulated.NewBackend(genesisAlloc)
	t.Cleanup(func() {
		_ = sim.Close()
	})
	return sim, privateKey, address
}

// GenerateAddress creates a random address for testing
func GenerateAddress() common.Address {
	privateKey, _ := crypto.GenerateKey()
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// Ether converts whole tokens to 18-decimal base units
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// AssertBigIntEqual compares two big.Int values for equality in tests
func AssertBigIntEqual(t *testing.T, expected, actual *big.Int, msgAndArgs ...interface{}) {
	t.Helper()
	if expected == nil && actual == nil {
		return
	}
	if expected == nil || actual == nil {
		assert.Fail(t, "Values not equal", msgAndArgs...)
		return
	}
	assert.Equal(t, expected.String(), actual.String(), msgAndArgs...)
}

// Context returns a context bounded by DefaultTestTimeout and cancelled on test cleanup
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	t.Cleanup(cancel)
	return ctx
}
