package config

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
)

// Config holds the configuration shared by the solver and the relayer
type Config struct {
	PrivateKey     string
	Chains         map[int]ChainConfig
	MetricsAPIKey  string
	CircuitBreaker CircuitBreakerConfig
	MaxGasPrice    *big.Int
	RPCTimeout     time.Duration
	LoggerConfig   LoggerConfig
	Solver         SolverConfig
	Relayer        RelayerConfig
	Proof          ProofConfig
	Store          StoreConfig
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// ChainConfig holds the configuration for a specific blockchain
type ChainConfig struct {
	ChainID       int     `yaml:"chain_id"`
	Name          string  `yaml:"name"`
	RPCURL        string  `yaml:"rpc_url"`
	IntentAddress string  `yaml:"intent_address"`
	GasMultiplier float64 `yaml:"gas_multiplier"`
	StartBlock    uint64  `yaml:"start_block"`
}

// SolverConfig holds the bidding and delivery parameters of the solver
type SolverConfig struct {
	Port                   string
	MinProfitMargin        float64
	MaxBidAmount           *big.Int
	BidIncrement           *big.Int
	BalanceBuffer          float64
	PollingInterval        time.Duration
	BidInterval            time.Duration
	MaxBlockRange          uint64
	StartBlockLookback     uint64
	SettleDelay            time.Duration
	CompletionTimeout      time.Duration
	CompletionPollInterval time.Duration
	AuctionGrace           time.Duration
	RelayerURL             string
	RoutePairs             map[int]int
}

// RelayerConfig holds the relayer HTTP server settings
type RelayerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// ProofConfig holds the proof verification provider settings
type ProofConfig struct {
	RequiredChains []int
	APIURL         string
	APIKey         string
	PollInterval   time.Duration
	MaxAttempts    int
}

// RequiresProof reports whether settlements for a destination chain need a finalized proof
func (p ProofConfig) RequiresProof(destinationChainID int) bool {
	for _, id := range p.RequiredChains {
		if id == destinationChainID {
			return true
		}
	}
	return false
}

// Recipient store backends
const (
	StoreBackendMemory   = "memory"
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"
)

// StoreConfig selects and configures the recipient manifest backend
type StoreConfig struct {
	Backend       string `envconfig:"BACKEND" default:"memory"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix     string `envconfig:"KEY_PREFIX" default:"recipients"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := loadFromEnv()
	if err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromEnv() (*Config, error) {
	chainList, err := GetEnvChainConfigs()
	if err != nil {
		return nil, err
	}
	chainConfigs := make(map[int]ChainConfig, len(chainList))
	for _, chainConfig := range chainList {
		chainConfigs[chainConfig.ChainID] = chainConfig
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}
	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}
	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}
	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	maxGasPrice, err := GetEnvMaxGasPrice()
	if err != nil {
		return nil, err
	}
	rpcTimeout, err := GetEnvDuration("RPC_TIMEOUT", DefaultRPCTimeout)
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}
	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	solverCfg, err := loadSolverConfig()
	if err != nil {
		return nil, err
	}
	relayerCfg, err := loadRelayerConfig()
	if err != nil {
		return nil, err
	}
	proofCfg, err := loadProofConfig()
	if err != nil {
		return nil, err
	}

	var storeCfg StoreConfig
	if err := envconfig.Process("RECIPIENT_STORE", &storeCfg); err != nil {
		return nil, fmt.Errorf("invalid RECIPIENT_STORE configuration: %w", err)
	}

	return &Config{
		PrivateKey:    os.Getenv("PRIVATE_KEY"),
		Chains:        chainConfigs,
		MetricsAPIKey: os.Getenv("METRICS_API_KEY"),
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		MaxGasPrice: maxGasPrice,
		RPCTimeout:  rpcTimeout,
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
		Solver:  solverCfg,
		Relayer: relayerCfg,
		Proof:   proofCfg,
		Store:   storeCfg,
	}, nil
}

func loadSolverConfig() (SolverConfig, error) {
	var (
		cfg SolverConfig
		err error
	)
	if cfg.Port, err = GetEnvPort("SOLVER_PORT", DefaultSolverPort); err != nil {
		return cfg, err
	}
	if cfg.MinProfitMargin, err = GetEnvFraction("MIN_PROFIT_MARGIN", DefaultMinProfitMargin); err != nil {
		return cfg, err
	}
	if cfg.BalanceBuffer, err = GetEnvFraction("BALANCE_BUFFER", DefaultBalanceBuffer); err != nil {
		return cfg, err
	}
	if cfg.MaxBidAmount, err = GetEnvTokenAmount("MAX_BID_AMOUNT", DefaultMaxBidAmount); err != nil {
		return cfg, err
	}
	if cfg.BidIncrement, err = GetEnvTokenAmount("BID_INCREMENT", DefaultBidIncrement); err != nil {
		return cfg, err
	}
	if cfg.BidIncrement.Sign() <= 0 {
		return cfg, fmt.Errorf("BID_INCREMENT must be greater than 0")
	}
	if cfg.PollingInterval, err = GetEnvPollingInterval(); err != nil {
		return cfg, err
	}
	if cfg.BidInterval, err = GetEnvDuration("BID_INTERVAL", DefaultBidInterval); err != nil {
		return cfg, err
	}
	if cfg.MaxBlockRange, err = GetEnvUint("MAX_BLOCK_RANGE", DefaultMaxBlockRange); err != nil {
		return cfg, err
	}
	if cfg.StartBlockLookback, err = GetEnvUint("START_BLOCK_LOOKBACK", DefaultStartBlockLookback); err != nil {
		return cfg, err
	}
	if cfg.SettleDelay, err = GetEnvDuration("SETTLE_DELAY", DefaultSettleDelay); err != nil {
		return cfg, err
	}
	if cfg.CompletionTimeout, err = GetEnvDuration("COMPLETION_TIMEOUT", DefaultCompletionTimeout); err != nil {
		return cfg, err
	}
	if cfg.CompletionPollInterval, err = GetEnvDuration("COMPLETION_POLL_INTERVAL", DefaultCompletionPollInterval); err != nil {
		return cfg, err
	}
	if cfg.AuctionGrace, err = GetEnvDuration("AUCTION_GRACE", DefaultAuctionGrace); err != nil {
		return cfg, err
	}
	if cfg.RelayerURL, err = GetEnvURL("RELAYER_URL", DefaultRelayerURL); err != nil {
		return cfg, err
	}
	if cfg.RoutePairs, err = GetEnvRoutePairs(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadRelayerConfig() (RelayerConfig, error) {
	var (
		cfg RelayerConfig
		err error
	)
	if cfg.Port, err = GetEnvPort("PORT", DefaultRelayerPort); err != nil {
		return cfg, err
	}
	if cfg.ShutdownTimeout, err = GetEnvDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadProofConfig() (ProofConfig, error) {
	var (
		cfg ProofConfig
		err error
	)
	if cfg.RequiredChains, err = GetEnvChainIDList("PROOF_REQUIRED_CHAINS", DefaultProofRequiredChains); err != nil {
		return cfg, err
	}
	if cfg.APIURL, err = GetEnvURL("PROOF_API_URL", DefaultProofAPIURL); err != nil {
		return cfg, err
	}
	cfg.APIKey = os.Getenv("PROOF_API_KEY")
	if cfg.PollInterval, err = GetEnvDuration("PROOF_POLL_INTERVAL", DefaultProofPollInterval); err != nil {
		return cfg, err
	}
	if cfg.MaxAttempts, err = GetEnvInt("PROOF_MAX_ATTEMPTS", DefaultProofMaxAttempts); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required")
	}
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain configuration is required")
	}
	for chainID, chainConfig := range cfg.Chains {
		if chainConfig.RPCURL == "" {
			return fmt.Errorf("RPC URL for chain %d is required", chainID)
		}
		if chainConfig.IntentAddress == "" {
			return fmt.Errorf("intent contract address for chain %d is required", chainID)
		}
	}
	for origin, destination := range cfg.Solver.RoutePairs {
		if _, ok := cfg.Chains[origin]; !ok {
			return fmt.Errorf("route origin chain %d is not configured", origin)
		}
		if _, ok := cfg.Chains[destination]; !ok {
			return fmt.Errorf("route destination chain %d is not configured", destination)
		}
	}
	switch cfg.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendRedis:
		if cfg.Store.RedisAddr == "" {
			return fmt.Errorf("RECIPIENT_STORE_REDIS_ADDR is required for the redis backend")
		}
	case StoreBackendPostgres:
		if cfg.Store.PostgresDSN == "" {
			return fmt.Errorf("RECIPIENT_STORE_POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid RECIPIENT_STORE_BACKEND value: %s, must be 'memory', 'redis' or 'postgres'", cfg.Store.Backend)
	}
	return nil
}
