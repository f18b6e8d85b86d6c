package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

const tol = 1e-9

func amount(symbol string, v float64) AssetAmount {
	return AssetAmount{Symbol: symbol, Amount: decimal.NewFromFloat(v)}
}

func TestCollateralValueAppliesThreshold(t *testing.T) {
	p := Position{
		ID:                   "pos-1",
		LiquidationThreshold: 0.8,
		Collateral:           []AssetAmount{amount("ETH", 10)},
		Debt:                 []AssetAmount{amount("USDC", 5000)},
	}
	prices := map[string]float64{"ETH": 2000, "USDC": 1}

	got := p.CollateralValueUSD(prices)
	want := 10 * 2000 * 0.8
	if math.Abs(got-want) > tol {
		t.Fatalf("CollateralValueUSD = %v, want %v", got, want)
	}
}

func TestValueSumsSkipUnpricedAssets(t *testing.T) {
	p := Position{
		ID:                   "pos-1",
		LiquidationThreshold: 0.8,
		Collateral:           []AssetAmount{amount("ETH", 10), amount("OBSCURE", 999)},
		Debt:                 []AssetAmount{amount("USDC", 5000), amount("OBSCURE", 1)},
	}
	prices := map[string]float64{"ETH": 2000, "USDC": 1}

	if got, want := p.CollateralValueUSD(prices), 10*2000*0.8; math.Abs(got-want) > tol {
		t.Errorf("CollateralValueUSD = %v, want %v", got, want)
	}
	if got, want := p.DebtValueUSD(prices), 5000.0; math.Abs(got-want) > tol {
		t.Errorf("DebtValueUSD = %v, want %v", got, want)
	}
}

func TestHealthFactorAt(t *testing.T) {
	p := Position{
		ID:                   "pos-1",
		LiquidationThreshold: 0.8,
		Collateral:           []AssetAmount{amount("ETH", 10)},
		Debt:                 []AssetAmount{amount("USDC", 8000)},
	}
	prices := map[string]float64{"ETH": 2000, "USDC": 1}

	hf, ok := p.HealthFactorAt(prices)
	if !ok {
		t.Fatal("HealthFactorAt returned ok=false with priced debt")
	}
	want := (10 * 2000 * 0.8) / 8000
	if math.Abs(hf-want) > tol {
		t.Fatalf("HealthFactorAt = %v, want %v", hf, want)
	}
}

func TestHealthFactorAtUndefinedWithoutDebt(t *testing.T) {
	p := Position{
		ID:                   "pos-1",
		LiquidationThreshold: 0.8,
		Collateral:           []AssetAmount{amount("ETH", 10)},
	}
	if _, ok := p.HealthFactorAt(map[string]float64{"ETH": 2000}); ok {
		t.Fatal("HealthFactorAt returned ok=true for a debt-free position")
	}
}

func TestAssetsDeduplicates(t *testing.T) {
	p := Position{
		Collateral: []AssetAmount{amount("ETH", 1), amount("WBTC", 1)},
		Debt:       []AssetAmount{amount("USDC", 1), amount("ETH", 1)},
	}
	got := p.Assets()
	want := []string{"ETH", "WBTC", "USDC"}
	if len(got) != len(want) {
		t.Fatalf("Assets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Assets = %v, want %v", got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := Position{
		ID:                   "pos-1",
		LiquidationThreshold: 0.8,
		Collateral:           []AssetAmount{amount("ETH", 1)},
	}

	tests := []struct {
		name    string
		mutate  func(*Position)
		wantErr bool
	}{
		{"valid", func(*Position) {}, false},
		{"missing id", func(p *Position) { p.ID = "" }, true},
		{"zero threshold", func(p *Position) { p.LiquidationThreshold = 0 }, true},
		{"threshold above one", func(p *Position) { p.LiquidationThreshold = 1.2 }, true},
		{"no collateral", func(p *Position) { p.Collateral = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPosition) {
					t.Fatalf("Validate error = %v, want ErrInvalidPosition", err)
				}
			} else if err != nil {
				t.Fatalf("Validate returned unexpected error: %v", err)
			}
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0x8ba1f109551bd432803012645ac136ddd64dba72")
	if err != nil {
		t.Fatalf("NormalizeAddress returned error: %v", err)
	}
	if got != "0x8ba1f109551bD432803012645Ac136ddd64DBA72" {
		t.Fatalf("NormalizeAddress = %s, want checksummed form", got)
	}

	if _, err := NormalizeAddress("not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("NormalizeAddress error = %v, want ErrInvalidAddress", err)
	}
}
