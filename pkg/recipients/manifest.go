package recipients

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// ValidationError reports a malformed manifest field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ParseAddress accepts a hex address that passes checksum-agnostic validation
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", s)
	}
	addr := common.HexToAddress(s)
	if err := ethav.Validate(addr.Hex()); err != nil {
		return common.Address{}, fmt.Errorf("%q: %v", s, err)
	}
	return addr, nil
}

// FromRequest converts the wire form into a validated manifest
func FromRequest(req *models.StoreRecipientsRequest) (*models.RecipientManifest, error) {
	if len(req.Recipients) != len(req.Amounts) {
		return nil, invalid("recipients", "%d recipients but %d amounts", len(req.Recipients), len(req.Amounts))
	}

	m := &models.RecipientManifest{
		IntentID:   strings.TrimSpace(req.IntentID),
		ChainID:    req.ChainID,
		Recipients: make([]common.Address, len(req.Recipients)),
		Amounts:    make([]*big.Int, len(req.Amounts)),
	}
	for i, r := range req.Recipients {
		addr, err := ParseAddress(r)
		if err != nil {
			return nil, invalid(fmt.Sprintf("recipients[%d]", i), "%v", err)
		}
		m.Recipients[i] = addr
	}
	for i, a := range req.Amounts {
		amount, ok := new(big.Int).SetString(strings.TrimSpace(a), 10)
		if !ok {
			return nil, invalid(fmt.Sprintf("amounts[%d]", i), "%q is not a decimal integer", a)
		}
		m.Amounts[i] = amount
	}

	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks a manifest and fills its total and creation time
func Validate(m *models.RecipientManifest) error {
	if m == nil {
		return invalid("manifest", "missing")
	}
	if strings.TrimSpace(m.IntentID) == "" {
		return invalid("intentId", "required")
	}
	if _, err := models.ParseIntentID(m.IntentID); err != nil {
		return invalid("intentId", "%v", err)
	}
	if len(m.Recipients) == 0 {
		return invalid("recipients", "at least one recipient is required")
	}
	if len(m.Recipients) != len(m.Amounts) {
		return invalid("recipients", "%d recipients but %d amounts", len(m.Recipients), len(m.Amounts))
	}
	for i, r := range m.Recipients {
		if r == (common.Address{}) {
			return invalid(fmt.Sprintf("recipients[%d]", i), "zero address")
		}
	}
	for i, a := range m.Amounts {
		if a == nil || a.Sign() <= 0 {
			return invalid(fmt.Sprintf("amounts[%d]", i), "must be positive")
		}
	}

	m.TotalAmount = m.Sum()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

// ToResponse renders a manifest in its wire form
func ToResponse(m *models.RecipientManifest) *models.RecipientsResponse {
	resp := &models.RecipientsResponse{
		Success:    true,
		IntentID:   m.IntentID,
		Recipients: make([]string, len(m.Recipients)),
		Amounts:    make([]string, len(m.Amounts)),
		ChainID:    m.ChainID,
		Timestamp:  m.CreatedAt.UnixMilli(),
	}
	for i, r := range m.Recipients {
		resp.Recipients[i] = r.Hex()
	}
	for i, a := range m.Amounts {
		resp.Amounts[i] = a.String()
	}
	total := m.TotalAmount
	if total == nil {
		total = m.Sum()
	}
	resp.TotalAmount = total.String()
	return resp
}

// Rescale fits amounts to the expected total when they exceed it. Every amount but
// the last is scaled down proportionally (rounded down), and the last receives the
// remainder so the result sums to exactly expected. Amounts that do not exceed
// expected are returned unchanged.
func Rescale(amounts []*big.Int, expected *big.Int) []*big.Int {
	out := make([]*big.Int, len(amounts))
	for i, a := range amounts {
		out[i] = new(big.Int).Set(a)
	}

	sum := models.SumAmounts(amounts)
	if len(out) == 0 || sum.Cmp(expected) <= 0 {
		return out
	}

	assigned := new(big.Int)
	for i := 0; i < len(out)-1; i++ {
		out[i].Mul(out[i], expected)
		out[i].Quo(out[i], sum)
		assigned.Add(assigned, out[i])
	}
	out[len(out)-1] = new(big.Int).Sub(expected, assigned)
	return out
}
