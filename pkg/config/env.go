package config

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/speedrun-hq/speedrun-intents/pkg/chains"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
)

const (
	// DefaultPollingInterval defines the default block polling interval in seconds
	DefaultPollingInterval = 5

	// DefaultBidInterval defines how often an active auction is re-evaluated
	DefaultBidInterval = 10 * time.Second

	// DefaultMaxBlockRange caps the number of blocks scanned in one poll
	DefaultMaxBlockRange = 100

	// DefaultStartBlockLookback is how far behind head discovery starts on a fresh run
	DefaultStartBlockLookback = 100

	// DefaultSettleDelay is the pause between delivery and the settlement request
	DefaultSettleDelay = 10 * time.Second

	// DefaultCompletionTimeout bounds the wait for the settlement payout
	DefaultCompletionTimeout = 2 * time.Minute

	// DefaultCompletionPollInterval defines how often the payout balance is checked
	DefaultCompletionPollInterval = 5 * time.Second

	// DefaultAuctionGrace is how long past auction end the solver keeps trying to finalize
	DefaultAuctionGrace = 30 * time.Second

	// DefaultMinProfitMargin is the fraction of the escrow the solver keeps as profit
	DefaultMinProfitMargin = 0.02

	// DefaultBalanceBuffer is the fraction of the balance never committed to a bid
	DefaultBalanceBuffer = 0.1

	// DefaultMaxBidAmount is the hard cap on a single bid, in whole tokens
	DefaultMaxBidAmount = "1000"

	// DefaultBidIncrement is the minimum raise over the current highest bid, in whole tokens
	DefaultBidIncrement = "1"

	// TokenDecimals is the decimals assumed for token amounts given in whole units
	TokenDecimals = 18

	// DefaultSolverPort defines the default port of the solver control server
	DefaultSolverPort = "3001"

	// DefaultRelayerPort defines the default port of the relayer HTTP server
	DefaultRelayerPort = "3000"

	// DefaultRelayerURL defines where the solver reaches the relayer
	DefaultRelayerURL = "http://localhost:3000"

	// DefaultShutdownTimeout bounds graceful HTTP shutdown
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultRPCTimeout bounds a single RPC read
	DefaultRPCTimeout = 30 * time.Second

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5 * time.Minute

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15 * time.Minute

	// DefaultMaxGasPrice defines the maximum gas price for transactions
	DefaultMaxGasPrice = "100000000000" // 100 Gwei

	// DefaultProofAPIURL is empty: proof gated settlement fails until a provider is configured
	DefaultProofAPIURL = ""

	// DefaultProofPollInterval defines how often a proof job status is polled
	DefaultProofPollInterval = 5 * time.Second

	// DefaultProofMaxAttempts bounds proof status polling
	DefaultProofMaxAttempts = 60

	// DefaultLogLevel is used when LOG_LEVEL is unset
	DefaultLogLevel = "info"

	// Network specific values

	// Horizen testnet

	DefaultHorizenTestnetRPCURL = "https://horizen-rpc-testnet.appchain.base.org"

	// Base Sepolia

	DefaultBaseSepoliaRPCURL = "https://sepolia.base.org"
)

// DefaultProofRequiredChains lists destinations whose settlement waits for proof finalization
var DefaultProofRequiredChains = []int{chains.BaseSepolia}

// GetEnvPollingInterval returns the polling interval in seconds from environment variables
func GetEnvPollingInterval() (time.Duration, error) {
	pollingInterval := os.Getenv("POLLING_INTERVAL")
	if pollingInterval == "" {
		return time.Duration(DefaultPollingInterval) * time.Second, nil
	}

	interval, err := strconv.Atoi(pollingInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid POLLING_INTERVAL value: %s, must be an integer", pollingInterval)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("POLLING_INTERVAL must be greater than 0")
	}
	return time.Duration(interval) * time.Second, nil
}

// GetEnvDuration returns a positive duration ("10s", "2m") from environment variables
func GetEnvDuration(key string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", key, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}

// GetEnvInt returns a positive integer from environment variables
func GetEnvInt(key string, def int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}

// GetEnvUint returns a positive unsigned integer from environment variables
func GetEnvUint(key string, def uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s value: %s, must be a positive integer", key, value)
	}
	return parsed, nil
}

// GetEnvFraction returns a value in [0, 1) from environment variables
func GetEnvFraction(key string, def float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a decimal number", key, value)
	}
	if parsed < 0 || parsed >= 1 {
		return 0, fmt.Errorf("%s must be in the range [0, 1)", key)
	}
	return parsed, nil
}

// GetEnvTokenAmount returns a whole-token amount ("1000", "0.5") converted to base units
func GetEnvTokenAmount(key string, def string) (*big.Int, error) {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}

	amount, err := chains.ParseUnits(value, TokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value: %s, must be a decimal token amount", key, value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%s must be greater than or equal to 0", key)
	}
	return amount, nil
}

// GetEnvPort returns a server port from environment variables
func GetEnvPort(key string, def string) (string, error) {
	port := os.Getenv(key)
	if port == "" {
		return def, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid %s value: %s, must be a valid integer", key, port)
	}
	return port, nil
}

// GetEnvURL returns an absolute URL from environment variables
func GetEnvURL(key string, def string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	if _, err := url.ParseRequestURI(value); err != nil {
		return "", fmt.Errorf("invalid %s value: %s, must be a valid URL", key, value)
	}
	return strings.TrimRight(value, "/"), nil
}

// GetEnvChainIDList returns a comma separated list of chain ids or network names
func GetEnvChainIDList(key string, def []int) ([]int, error) {
	value, set := os.LookupEnv(key)
	if !set {
		return append([]int(nil), def...), nil
	}

	var ids []int
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, err := chains.ChainIDByName(item)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value: %s, %w", key, value, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetEnvRoutePairs returns the origin to destination routes served by the solver.
// The format is "origin:destination" pairs separated by commas, e.g. "horizen:base,base:horizen".
func GetEnvRoutePairs() (map[int]int, error) {
	value := os.Getenv("ROUTE_PAIRS")
	if value == "" {
		return map[int]int{
			chains.HorizenTestnet: chains.BaseSepolia,
			chains.BaseSepolia:    chains.HorizenTestnet,
		}, nil
	}

	routes := make(map[int]int)
	for _, pair := range strings.Split(value, ",") {
		parts := strings.Split(strings.TrimSpace(pair), ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid ROUTE_PAIRS value: %s, must be 'origin:destination' pairs", value)
		}
		origin, err := chains.ChainIDByName(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid ROUTE_PAIRS value: %s, %w", value, err)
		}
		destination, err := chains.ChainIDByName(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid ROUTE_PAIRS value: %s, %w", value, err)
		}
		if origin == destination {
			return nil, fmt.Errorf("invalid ROUTE_PAIRS value: %s, origin and destination must differ", value)
		}
		routes[origin] = destination
	}
	return routes, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	return GetEnvInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return GetEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return GetEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)
}

// GetEnvMaxGasPrice returns the maximum gas price from environment variables
func GetEnvMaxGasPrice() (*big.Int, error) {
	maxGasPrice := os.Getenv("MAX_GAS_PRICE")
	if maxGasPrice == "" {
		maxGasPrice = DefaultMaxGasPrice
	}

	maxGasPriceBig := new(big.Int)
	if _, ok := maxGasPriceBig.SetString(maxGasPrice, 10); !ok {
		return nil, fmt.Errorf("invalid MAX_GAS_PRICE value: %s, must be a valid integer string", maxGasPrice)
	}

	if maxGasPriceBig.Sign() < 0 {
		return nil, fmt.Errorf("MAX_GAS_PRICE must be greater than or equal to 0")
	}
	return maxGasPriceBig, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = DefaultLogLevel
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return logger.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value: %s, must be 'debug', 'info', 'notice' or 'error'", level)
	}
	return parsed, nil
}

// GetEnvLogColoring returns whether log lines are colored by chain
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", true)
}

func getEnvBool(key string, def bool) (bool, error) {
	value := os.Getenv(key)
	switch value {
	case "":
		return def, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, value)
}
