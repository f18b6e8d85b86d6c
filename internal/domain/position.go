package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AssetAmount is an immutable (asset, amount) pair inside a position snapshot.
// Amounts use decimal arithmetic so that large token balances survive a round
// trip through JSON without float truncation.
type AssetAmount struct {
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// ValueUSD returns the USD value of the amount at the given unit price.
func (a AssetAmount) ValueUSD(price float64) float64 {
	return a.Amount.InexactFloat64() * price
}

// Position is a point-in-time snapshot of a leveraged position as delivered by
// an external watcher. It is read-only to the decision core: every pipeline
// stage derives new values from it and never mutates it.
type Position struct {
	ID                   string        `json:"position_id"`
	AccountID            string        `json:"account_id"`
	Chain                string        `json:"chain"`
	Protocol             string        `json:"protocol"`
	Collateral           []AssetAmount `json:"collateral"`
	Debt                 []AssetAmount `json:"debt"`
	HealthFactor         float64       `json:"health_factor"`
	LiquidationThreshold float64       `json:"liquidation_threshold"`
}

// CollateralValueUSD sums the haircut-adjusted USD value of all collateral at
// the given prices. Assets with no price entry are excluded from the sum.
func (p Position) CollateralValueUSD(prices map[string]float64) float64 {
	var total float64
	for _, c := range p.Collateral {
		if price, ok := prices[c.Symbol]; ok && price > 0 {
			total += c.ValueUSD(price) * p.LiquidationThreshold
		}
	}
	return total
}

// DebtValueUSD sums the USD value of all debt at the given prices. Assets with
// no price entry are excluded from the sum.
func (p Position) DebtValueUSD(prices map[string]float64) float64 {
	var total float64
	for _, d := range p.Debt {
		if price, ok := prices[d.Symbol]; ok && price > 0 {
			total += d.ValueUSD(price)
		}
	}
	return total
}

// HealthFactorAt recomputes the health factor at the given prices:
// haircut-adjusted collateral value over debt value. It returns false when the
// debt value is zero, in which case the ratio is undefined.
func (p Position) HealthFactorAt(prices map[string]float64) (float64, bool) {
	debt := p.DebtValueUSD(prices)
	if debt <= 0 {
		return 0, false
	}
	return p.CollateralValueUSD(prices) / debt, true
}

// Assets returns the deduplicated union of collateral and debt symbols.
func (p Position) Assets() []string {
	seen := make(map[string]bool, len(p.Collateral)+len(p.Debt))
	var out []string
	for _, a := range p.Collateral {
		if !seen[a.Symbol] {
			seen[a.Symbol] = true
			out = append(out, a.Symbol)
		}
	}
	for _, a := range p.Debt {
		if !seen[a.Symbol] {
			seen[a.Symbol] = true
			out = append(out, a.Symbol)
		}
	}
	return out
}

// Validate checks the structural invariants a watcher-supplied snapshot must
// satisfy before it enters the decision pipeline.
func (p Position) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("position: missing id: %w", ErrInvalidPosition)
	}
	if p.LiquidationThreshold <= 0 || p.LiquidationThreshold > 1 {
		return fmt.Errorf("position %s: liquidation threshold %.4f out of (0,1]: %w",
			p.ID, p.LiquidationThreshold, ErrInvalidPosition)
	}
	if len(p.Collateral) == 0 {
		return fmt.Errorf("position %s: no collateral: %w", p.ID, ErrInvalidPosition)
	}
	return nil
}

// NormalizeAddress validates an EVM account address supplied by a watcher and
// returns its EIP-55 checksummed form.
func NormalizeAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("address %q: %w", addr, ErrInvalidAddress)
	}
	return common.HexToAddress(addr).Hex(), nil
}
