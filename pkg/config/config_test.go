package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/speedrun-intents/pkg/chains"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
)

const (
	testHorizenContract = "0x1111111111111111111111111111111111111111"
	testBaseContract    = "0x2222222222222222222222222222222222222222"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	t.Setenv("BRIDGE_CONTRACT_HORIZEN", testHorizenContract)
	t.Setenv("BRIDGE_CONTRACT_BASE", testBaseContract)
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := loadFromEnv()
	require.NoError(t, err)
	require.NoError(t, validateConfig(cfg))

	require.Len(t, cfg.Chains, 2)
	assert.Equal(t, DefaultHorizenTestnetRPCURL, cfg.Chains[chains.HorizenTestnet].RPCURL)
	assert.Equal(t, testBaseContract, cfg.Chains[chains.BaseSepolia].IntentAddress)

	assert.Equal(t, 0.02, cfg.Solver.MinProfitMargin)
	assert.Equal(t, 0.1, cfg.Solver.BalanceBuffer)
	assert.Equal(t, "1000000000000000000000", cfg.Solver.MaxBidAmount.String())
	assert.Equal(t, "1000000000000000000", cfg.Solver.BidIncrement.String())
	assert.Equal(t, 5*time.Second, cfg.Solver.PollingInterval)
	assert.Equal(t, 10*time.Second, cfg.Solver.BidInterval)
	assert.Equal(t, uint64(100), cfg.Solver.MaxBlockRange)
	assert.Equal(t, 10*time.Second, cfg.Solver.SettleDelay)
	assert.Equal(t, chains.BaseSepolia, cfg.Solver.RoutePairs[chains.HorizenTestnet])
	assert.Equal(t, DefaultRelayerURL, cfg.Solver.RelayerURL)

	assert.Equal(t, "3000", cfg.Relayer.Port)
	assert.True(t, cfg.Proof.RequiresProof(chains.BaseSepolia))
	assert.False(t, cfg.Proof.RequiresProof(chains.HorizenTestnet))

	assert.Equal(t, StoreBackendMemory, cfg.Store.Backend)
	assert.Equal(t, "recipients", cfg.Store.KeyPrefix)
	assert.Equal(t, logger.InfoLevel, cfg.LoggerConfig.Level)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIN_PROFIT_MARGIN", "0.05")
	t.Setenv("MAX_BID_AMOUNT", "2.5")
	t.Setenv("SETTLE_DELAY", "1s")
	t.Setenv("ROUTE_PAIRS", "base:horizen")
	t.Setenv("PROOF_REQUIRED_CHAINS", "")
	t.Setenv("RECIPIENT_STORE_BACKEND", "redis")
	t.Setenv("RECIPIENT_STORE_REDIS_DB", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := loadFromEnv()
	require.NoError(t, err)
	require.NoError(t, validateConfig(cfg))

	assert.Equal(t, 0.05, cfg.Solver.MinProfitMargin)
	assert.Equal(t, "2500000000000000000", cfg.Solver.MaxBidAmount.String())
	assert.Equal(t, time.Second, cfg.Solver.SettleDelay)
	assert.Equal(t, map[int]int{chains.BaseSepolia: chains.HorizenTestnet}, cfg.Solver.RoutePairs)
	assert.False(t, cfg.Proof.RequiresProof(chains.BaseSepolia))
	assert.Equal(t, StoreBackendRedis, cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Store.RedisDB)
	assert.Equal(t, logger.DebugLevel, cfg.LoggerConfig.Level)
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"margin out of range", "MIN_PROFIT_MARGIN", "1.5"},
		{"bad polling interval", "POLLING_INTERVAL", "fast"},
		{"bad duration", "BID_INTERVAL", "10"},
		{"bad bid amount", "MAX_BID_AMOUNT", "lots"},
		{"zero increment", "BID_INCREMENT", "0"},
		{"bad route", "ROUTE_PAIRS", "horizen"},
		{"self route", "ROUTE_PAIRS", "base:base"},
		{"bad relayer url", "RELAYER_URL", "localhost"},
		{"bad log level", "LOG_LEVEL", "loud"},
		{"bad bool", "CIRCUIT_BREAKER_ENABLED", "yes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := loadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := loadFromEnv()
	require.NoError(t, err)

	missingKey := *cfg
	missingKey.PrivateKey = ""
	assert.ErrorContains(t, validateConfig(&missingKey), "PRIVATE_KEY")

	badStore := *cfg
	badStore.Store.Backend = "sqlite"
	assert.ErrorContains(t, validateConfig(&badStore), "RECIPIENT_STORE_BACKEND")

	postgres := *cfg
	postgres.Store.Backend = StoreBackendPostgres
	assert.ErrorContains(t, validateConfig(&postgres), "POSTGRES_DSN")

	badRoute := *cfg
	badRoute.Solver.RoutePairs = map[int]int{chains.HorizenTestnet: chains.Ethereum}
	assert.ErrorContains(t, validateConfig(&badRoute), "not configured")
}

func TestValidateRequiresContract(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BRIDGE_CONTRACT_BASE", "")

	cfg, err := loadFromEnv()
	require.NoError(t, err)
	assert.ErrorContains(t, validateConfig(cfg), "84532")
}

func TestChainsFile(t *testing.T) {
	content := `
chains:
  - chain_id: 31338
    rpc_url: http://127.0.0.1:8546
    intent_address: "0x3333333333333333333333333333333333333333"
  - chain_id: 31337
    name: devnet-a
    rpc_url: http://127.0.0.1:8545
    intent_address: "0x4444444444444444444444444444444444444444"
    gas_multiplier: 1.5
    start_block: 12
`
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CHAINS_CONFIG_FILE", path)

	list, err := GetEnvChainConfigs()
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, chains.LocalA, list[0].ChainID)
	assert.Equal(t, "devnet-a", list[0].Name)
	assert.Equal(t, 1.5, list[0].GasMultiplier)
	assert.Equal(t, uint64(12), list[0].StartBlock)

	assert.Equal(t, "local-b", list[1].Name)
	assert.Equal(t, DefaultGasMultiplier, list[1].GasMultiplier)
}

func TestChainsFileRejectsDuplicates(t *testing.T) {
	_, err := parseChains([]byte("chains:\n  - chain_id: 1\n  - chain_id: 1\n"))
	assert.Error(t, err)

	_, err = parseChains([]byte("chains:\n  - chain_id: 1\n    intent_address: nope\n"))
	assert.Error(t, err)
}
