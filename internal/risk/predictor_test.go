package risk

import (
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/khadira1937/xligo/internal/domain"
	"github.com/khadira1937/xligo/internal/market"
)

func testPredictor() *Predictor {
	return NewPredictor(market.NewModel(0), Config{}, slog.New(slog.DiscardHandler))
}

// ethPosition builds the reference position: 10 ETH collateral, 15000 USDC
// debt, liquidation threshold 0.83. At ETH=$2500 the health factor is
// (10*2500*0.83)/15000 ~= 1.383.
func ethPosition(debtUSD int64) domain.Position {
	return domain.Position{
		ID:        "pos-1",
		AccountID: "acct-1",
		Chain:     "ethereum",
		Protocol:  "aave_v3",
		Collateral: []domain.AssetAmount{
			{Symbol: "ETH", Amount: decimal.NewFromInt(10)},
		},
		Debt: []domain.AssetAmount{
			{Symbol: "USDC", Amount: decimal.NewFromInt(debtUSD)},
		},
		HealthFactor:         1.383,
		LiquidationThreshold: 0.83,
	}
}

var ethPrices = map[string]float64{"ETH": 2500, "USDC": 1}

func TestAssess_BreachedPositionHasZeroTTB(t *testing.T) {
	p := testPredictor()

	// 25000 USDC of debt puts the health factor exactly at the threshold:
	// (10*2500*0.83)/25000 = 0.83.
	pos := ethPosition(25000)
	res := p.Assess(context.Background(), pos, ethPrices, domain.AssessParams{})

	if res.Status != domain.AssessmentOK {
		t.Fatalf("expected ok status, got %s", res.Status)
	}
	if res.TTBMinutes != 0 {
		t.Errorf("expected ttb 0 for breached position, got %.2f", res.TTBMinutes)
	}
}

func TestAssess_MissingCollateralPriceForcesBreach(t *testing.T) {
	p := testPredictor()
	pos := ethPosition(15000)

	// Only the debt asset is priced: collateral value collapses to zero.
	res := p.Assess(context.Background(), pos, map[string]float64{"USDC": 1}, domain.AssessParams{})

	if res.Status != domain.AssessmentOK {
		t.Fatalf("expected ok status, got %s", res.Status)
	}
	if res.TTBMinutes != 0 {
		t.Errorf("expected ttb 0 when the only collateral asset is unpriced, got %.2f", res.TTBMinutes)
	}
}

func TestAssess_ZeroDebtFallsBack(t *testing.T) {
	p := testPredictor()
	pos := ethPosition(15000)
	pos.Debt = nil

	res := p.Assess(context.Background(), pos, ethPrices, domain.AssessParams{})

	if res.Status != domain.AssessmentFallback {
		t.Fatalf("expected fallback status, got %s", res.Status)
	}
	if res.TTBMinutes != 5.0 || res.BreachProbability != 0.5 || res.Confidence != 0.1 {
		t.Errorf("unexpected fallback values: ttb=%.1f prob=%.2f conf=%.2f",
			res.TTBMinutes, res.BreachProbability, res.Confidence)
	}
}

func TestAssess_ZeroSimulationsBoundary(t *testing.T) {
	p := testPredictor()
	pos := ethPosition(15000)

	for _, params := range []domain.AssessParams{
		{HorizonMinutes: 240, NumSimulations: 0},
		{HorizonMinutes: 0, NumSimulations: 1000},
	} {
		res := p.Assess(context.Background(), pos, ethPrices, params)
		if res.Status != domain.AssessmentOK {
			t.Fatalf("params %+v: expected ok status, got %s", params, res.Status)
		}
		if res.BreachProbability != 0 {
			t.Errorf("params %+v: expected breach probability 0, got %.4f", params, res.BreachProbability)
		}
		if res.TTBMinutes < 1 {
			t.Errorf("params %+v: expected deterministic ttb >= 1, got %.2f", params, res.TTBMinutes)
		}
	}
}

func TestAssess_BreachProbabilityMonotoneInHorizon(t *testing.T) {
	p := testPredictor()

	// Debt sized so the health factor sits just above the simulation safety
	// margin: (10*2500*0.83)/19760 ~= 1.050.
	pos := ethPosition(19760)

	horizons := []float64{30, 120, 480}
	var prev float64
	for i, h := range horizons {
		res := p.Assess(context.Background(), pos, ethPrices, domain.AssessParams{
			HorizonMinutes: h,
			NumSimulations: 2000,
			Seed:           42,
		})
		if i > 0 && res.BreachProbability < prev {
			t.Errorf("breach probability decreased from %.4f to %.4f when horizon grew to %.0f",
				prev, res.BreachProbability, h)
		}
		prev = res.BreachProbability
	}
}

func TestAssess_ReproducibleWithSeed(t *testing.T) {
	p := testPredictor()
	pos := ethPosition(19760)
	params := domain.AssessParams{HorizonMinutes: 240, NumSimulations: 1000, Seed: 7}

	a := p.Assess(context.Background(), pos, ethPrices, params)
	b := p.Assess(context.Background(), pos, ethPrices, params)

	if a.BreachProbability != b.BreachProbability {
		t.Errorf("breach probability not reproducible: %.6f vs %.6f",
			a.BreachProbability, b.BreachProbability)
	}
	if a.TTBMinutes != b.TTBMinutes {
		t.Errorf("ttb not reproducible: %.4f vs %.4f", a.TTBMinutes, b.TTBMinutes)
	}
}

func TestAssess_CriticalPriceLevel(t *testing.T) {
	p := testPredictor()
	pos := ethPosition(15000)

	res := p.Assess(context.Background(), pos, ethPrices, domain.AssessParams{})

	// With a single collateral asset the critical level is debt/quantity:
	// at ETH=$1500, (10*1500*0.83)/15000 = 0.83 = the threshold.
	level, ok := res.CriticalPriceLevels["ETH"]
	if !ok {
		t.Fatal("expected a critical price level for ETH")
	}
	if math.Abs(level-1500) > 1e-6 {
		t.Errorf("expected critical ETH price 1500, got %.4f", level)
	}
}

func TestAssess_ShockScenarios(t *testing.T) {
	p := testPredictor()
	pos := ethPosition(15000)

	res := p.Assess(context.Background(), pos, ethPrices, domain.AssessParams{})

	// hf=1.383: only the -30% shock drops the health factor to 0.968, below
	// the 1.02 safety margin.
	if len(res.ShockScenarios) != 1 || res.ShockScenarios[0] != -0.30 {
		t.Errorf("expected only the -0.30 shock to breach, got %v", res.ShockScenarios)
	}
}

func TestAssess_ConfidenceBoundsAndHistory(t *testing.T) {
	noHistory := testPredictor()
	pos := ethPosition(15000)

	resNoHist := noHistory.Assess(context.Background(), pos, ethPrices, domain.AssessParams{})
	if resNoHist.Confidence < 0.1 || resNoHist.Confidence > 0.95 {
		t.Fatalf("confidence %.3f outside [0.1, 0.95]", resNoHist.Confidence)
	}

	// Recording calm history raises both the data-quality factor and the
	// volatility-stability factor.
	m := market.NewModel(0)
	ts := resNoHist.CalculatedAt
	for i := 0; i < 50; i++ {
		m.RecordPrice("ETH", 2500, ts)
	}
	withHistory := NewPredictor(m, Config{}, slog.New(slog.DiscardHandler))
	resHist := withHistory.Assess(context.Background(), pos, ethPrices, domain.AssessParams{})

	if resHist.Confidence <= resNoHist.Confidence {
		t.Errorf("expected higher confidence with price history: %.3f <= %.3f",
			resHist.Confidence, resNoHist.Confidence)
	}
}

func TestAssess_RiskyPositionBreachesInSimulation(t *testing.T) {
	p := testPredictor()

	// (10*2500*0.83)/20140 ~= 1.030, within one sigma-day of the margin.
	pos := ethPosition(20140)
	res := p.Assess(context.Background(), pos, ethPrices, domain.AssessParams{
		HorizonMinutes: 480,
		NumSimulations: 2000,
		Seed:           99,
	})

	if res.BreachProbability <= 0 {
		t.Error("expected a nonzero breach probability for a near-margin position")
	}
	if res.TTBMinutes <= 0 {
		t.Error("expected a positive ttb for an unbreached position")
	}
}

func TestDefaultParams(t *testing.T) {
	p := testPredictor()
	params := p.DefaultParams()
	if params.HorizonMinutes != 240 || params.NumSimulations != 10000 || params.ConfidenceLevel != 0.95 {
		t.Errorf("unexpected defaults: %+v", params)
	}
}
