package chains

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	HorizenTestnet = 845320009
	BaseSepolia    = 84532
	Base           = 8453
	Ethereum       = 1
	Sepolia        = 11155111
	LocalA         = 31337
	LocalB         = 31338
)

// ChainList contains the chain IDs the bridge knows by name
var ChainList = []int{
	HorizenTestnet,
	BaseSepolia,
	Base,
	Ethereum,
	Sepolia,
	LocalA,
	LocalB,
}

var chainNames = map[int]string{
	HorizenTestnet: "horizen",
	BaseSepolia:    "base",
	Base:           "base-mainnet",
	Ethereum:       "ethereum",
	Sepolia:        "sepolia",
	LocalA:         "local-a",
	LocalB:         "local-b",
}

// DefaultGasLimit is the gas limit used for bridge calls when estimation is skipped
var DefaultGasLimit = map[int]uint64{
	HorizenTestnet: 800000,
	BaseSepolia:    800000,
	Base:           800000,
	Ethereum:       500000,
	Sepolia:        500000,
}

// GetChainName returns the short network name of a chain, or an empty string
func GetChainName(chainID int) string {
	return chainNames[chainID]
}

// ChainIDByName resolves a network name (case-insensitive) or a decimal chain id
func ChainIDByName(name string) (int, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for id, n := range chainNames {
		if n == name {
			return id, nil
		}
	}
	var id int
	if _, err := fmt.Sscanf(name, "%d", &id); err == nil && id > 0 {
		return id, nil
	}
	return 0, fmt.Errorf("unknown network: %s", name)
}

// FormatUnits renders a base-unit amount with the given number of decimals
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	neg := amount.Sign() < 0
	s := new(big.Int).Abs(amount).String()
	if decimals > 0 {
		if len(s) <= decimals {
			s = strings.Repeat("0", decimals-len(s)+1) + s
		}
		whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
		s = whole
		if frac != "" {
			s += "." + frac
		}
	}
	if neg {
		s = "-" + s
	}
	return s
}

// ParseUnits parses a decimal token amount ("1.5") into base units
func ParseUnits(value string, decimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)
	parts := strings.SplitN(value, ".", 2)
	whole, frac := parts[0], ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("too many decimal places in %q", value)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok || whole == "" && frac == "" {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return out, nil
}
