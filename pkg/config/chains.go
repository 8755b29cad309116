package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/speedrun-hq/speedrun-intents/pkg/chains"
)

// DefaultGasMultiplier is applied to the suggested gas price when a chain does not set one
const DefaultGasMultiplier = 1.1

// chainsFile is the layout of CHAINS_CONFIG_FILE
type chainsFile struct {
	Chains []ChainConfig `yaml:"chains"`
}

// GetEnvChainConfigs returns the chain configurations, either from CHAINS_CONFIG_FILE or from
// the built-in Horizen testnet and Base Sepolia entries with per-chain environment overrides
func GetEnvChainConfigs() ([]ChainConfig, error) {
	if path := os.Getenv("CHAINS_CONFIG_FILE"); path != "" {
		return LoadChainsFile(path)
	}

	return []ChainConfig{
		{
			ChainID:       chains.HorizenTestnet,
			Name:          chains.GetChainName(chains.HorizenTestnet),
			RPCURL:        getEnvOrDefault("HORIZEN_TESTNET_RPC_URL", DefaultHorizenTestnetRPCURL),
			IntentAddress: os.Getenv("BRIDGE_CONTRACT_HORIZEN"),
			GasMultiplier: DefaultGasMultiplier,
		},
		{
			ChainID:       chains.BaseSepolia,
			Name:          chains.GetChainName(chains.BaseSepolia),
			RPCURL:        getEnvOrDefault("BASE_SEPOLIA_RPC_URL", DefaultBaseSepoliaRPCURL),
			IntentAddress: os.Getenv("BRIDGE_CONTRACT_BASE"),
			GasMultiplier: DefaultGasMultiplier,
		},
	}, nil
}

// LoadChainsFile reads chain configurations from a YAML file
func LoadChainsFile(path string) ([]ChainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains file %s: %w", path, err)
	}
	return parseChains(data)
}

func parseChains(data []byte) ([]ChainConfig, error) {
	var file chainsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chains file: %w", err)
	}

	seen := make(map[int]bool, len(file.Chains))
	for i := range file.Chains {
		c := &file.Chains[i]
		if c.ChainID <= 0 {
			return nil, fmt.Errorf("chain entry %d: chain_id must be greater than 0", i)
		}
		if seen[c.ChainID] {
			return nil, fmt.Errorf("chain %d is configured twice", c.ChainID)
		}
		seen[c.ChainID] = true

		if c.IntentAddress != "" && !common.IsHexAddress(c.IntentAddress) {
			return nil, fmt.Errorf("invalid intent_address for chain %d: %s", c.ChainID, c.IntentAddress)
		}
		if c.Name == "" {
			c.Name = chains.GetChainName(c.ChainID)
		}
		if c.GasMultiplier == 0 {
			c.GasMultiplier = DefaultGasMultiplier
		}
	}

	sort.Slice(file.Chains, func(i, j int) bool { return file.Chains[i].ChainID < file.Chains[j].ChainID })
	return file.Chains, nil
}

func getEnvOrDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}
