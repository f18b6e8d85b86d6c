// Package risk implements time-to-breach estimation for leveraged positions:
// a deterministic 2-sigma bound, Monte Carlo GBM simulation, shock scenarios,
// and per-asset critical price levels.
package risk

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/khadira1937/xligo/internal/domain"
	"github.com/khadira1937/xligo/internal/market"
)

// shockFractions are the uniform collateral price shocks evaluated on every
// assessment, most benign first.
var shockFractions = []float64{-0.05, -0.10, -0.15, -0.20, -0.30}

// Config holds the predictor defaults surfaced through DefaultParams and the
// simulation worker settings.
type Config struct {
	HorizonMinutes  float64
	NumSimulations  int
	Workers         int
	SafetyMarginHF  float64
	ConfidenceLevel float64
}

func (c Config) withDefaults() Config {
	if c.HorizonMinutes <= 0 {
		c.HorizonMinutes = 240
	}
	if c.NumSimulations <= 0 {
		c.NumSimulations = 10000
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.SafetyMarginHF <= 0 {
		c.SafetyMarginHF = 1.02
	}
	if c.ConfidenceLevel <= 0 {
		c.ConfidenceLevel = 0.95
	}
	return c
}

// Predictor estimates how soon a position will breach its liquidation
// threshold. It is stateless apart from the read-only market model and safe
// for concurrent use by many pipelines.
type Predictor struct {
	market *market.Model
	cfg    Config
	logger *slog.Logger
}

// NewPredictor creates a Predictor backed by the given market model.
func NewPredictor(m *market.Model, cfg Config, logger *slog.Logger) *Predictor {
	return &Predictor{
		market: m,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "risk_predictor")),
	}
}

// DefaultParams returns assessment parameters filled from the predictor's
// configured defaults.
func (p *Predictor) DefaultParams() domain.AssessParams {
	return domain.AssessParams{
		HorizonMinutes:  p.cfg.HorizonMinutes,
		ConfidenceLevel: p.cfg.ConfidenceLevel,
		NumSimulations:  p.cfg.NumSimulations,
	}
}

// Assess produces a TimeToBreachResult for the position at the given oracle
// prices. It never returns an error: degenerate inputs and internal failures
// yield the conservative fallback result with Status set to
// AssessmentFallback, so a failed prediction is never mistaken for "no risk".
func (p *Predictor) Assess(ctx context.Context, pos domain.Position, prices map[string]float64, params domain.AssessParams) (res domain.TimeToBreachResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "assessment panicked, using fallback",
				slog.String("position_id", pos.ID),
				slog.Any("panic", r),
			)
			res = p.fallbackResult()
		}
	}()

	// Params are taken literally: a zero horizon or simulation count is the
	// documented boundary case, not a request for defaults. Callers wanting
	// the configured defaults start from DefaultParams.
	horizon := math.Max(params.HorizonMinutes, 0)
	nSims := params.NumSimulations
	if nSims < 0 {
		nSims = 0
	}

	debtValue := pos.DebtValueUSD(prices)
	if debtValue <= 0 {
		// Division by zero territory: either the position truly has no debt
		// or every debt asset is missing a price. Both degrade to the
		// documented conservative result.
		p.logger.WarnContext(ctx, "zero debt value, using fallback",
			slog.String("position_id", pos.ID),
		)
		return p.fallbackResult()
	}

	hf, _ := pos.HealthFactorAt(prices)
	vols := p.collateralVolatilities(pos)

	detTTB := p.deterministicTTB(hf, pos.LiquidationThreshold, vols)
	breachProb, expectedTTB, simulated := p.simulateBreach(ctx, pos, prices, vols, horizon, nSims, params.Seed)

	ttb := detTTB
	if simulated {
		ttb = math.Min(detTTB, expectedTTB)
	}

	shocks := p.shockScenarios(pos, prices)
	levels := p.criticalPriceLevels(pos, prices, debtValue)

	return domain.TimeToBreachResult{
		TTBMinutes:          ttb,
		BreachProbability:   breachProb,
		ShockScenarios:      shocks,
		CriticalPriceLevels: levels,
		Confidence:          p.confidence(pos, hf, vols),
		CalculatedAt:        time.Now().UTC(),
		Status:              domain.AssessmentOK,
	}
}

// deterministicTTB solves for the time at which a 2-sigma move in the most
// volatile collateral asset covers the drop needed to reach the liquidation
// threshold. An already-breached position returns 0; otherwise the result is
// floored at one minute.
func (p *Predictor) deterministicTTB(hf, threshold float64, vols map[string]float64) float64 {
	if hf <= threshold {
		return 0
	}

	maxVol := market.DefaultVolatility
	for _, v := range vols {
		if v > maxVol {
			maxVol = v
		}
	}

	// maxVol is floored at the conservative default, so sigmaPerMin > 0.
	sigmaPerMin := maxVol / math.Sqrt(market.MinutesPerYear)

	dropNeeded := (hf - threshold) / hf
	ttb := math.Pow(dropNeeded/(2*sigmaPerMin), 2)
	return math.Max(ttb, 1)
}

// shockScenarios applies each uniform shock fraction to the collateral asset
// prices and returns the fractions whose shocked health factor crosses the
// safety margin. Debt asset prices are held fixed so the shock measures the
// collateral side the way a market crash would.
func (p *Predictor) shockScenarios(pos domain.Position, prices map[string]float64) []float64 {
	collateral := make(map[string]bool, len(pos.Collateral))
	for _, c := range pos.Collateral {
		collateral[c.Symbol] = true
	}

	breaching := make([]float64, 0, len(shockFractions))
	for _, shock := range shockFractions {
		shocked := make(map[string]float64, len(prices))
		for asset, price := range prices {
			if collateral[asset] {
				shocked[asset] = price * (1 + shock)
			} else {
				shocked[asset] = price
			}
		}
		hf, ok := pos.HealthFactorAt(shocked)
		if !ok || hf <= p.cfg.SafetyMarginHF {
			breaching = append(breaching, shock)
		}
	}
	return breaching
}

// criticalPriceLevels computes, per collateral asset, the price at which the
// health factor reaches the liquidation threshold with every other price held
// fixed. This is the independent-asset approximation: correlated moves are
// captured by the Monte Carlo step, not here.
func (p *Predictor) criticalPriceLevels(pos domain.Position, prices map[string]float64, debtValue float64) map[string]float64 {
	levels := make(map[string]float64, len(pos.Collateral))
	haircutTotal := pos.CollateralValueUSD(prices)
	lt := pos.LiquidationThreshold

	for _, c := range pos.Collateral {
		price, ok := prices[c.Symbol]
		if !ok || price <= 0 {
			continue
		}
		qty := c.Amount.InexactFloat64()
		if qty <= 0 {
			continue
		}

		otherHaircut := haircutTotal - c.ValueUSD(price)*lt
		level := (lt*debtValue - otherHaircut) / (lt * qty)
		if level < 0 {
			level = 0
		}
		levels[c.Symbol] = level
	}
	return levels
}

// confidence scores the assessment as the geometric mean of data quality,
// volatility stability, health-factor margin, and diversification, clamped to
// [0.1, 0.95].
func (p *Predictor) confidence(pos domain.Position, hf float64, vols map[string]float64) float64 {
	dataQuality := 0.3
	for _, c := range pos.Collateral {
		if p.market.HasHistory(c.Symbol) {
			dataQuality = 0.8
			break
		}
	}

	var avgVol float64
	if len(vols) > 0 {
		var sum float64
		for _, v := range vols {
			sum += v
		}
		avgVol = sum / float64(len(vols))
	}
	volStability := math.Exp(-avgVol)

	hfMargin := math.Min(1, hf/2)
	if hfMargin <= 0 {
		hfMargin = 1e-3
	}
	diversification := math.Min(1, float64(len(pos.Collateral))/3)

	geo := math.Pow(dataQuality*volStability*hfMargin*diversification, 0.25)
	return clamp(geo, 0.1, 0.95)
}

// collateralVolatilities returns the annualized volatility per collateral
// asset in deterministic (sorted) order of insertion.
func (p *Predictor) collateralVolatilities(pos domain.Position) map[string]float64 {
	vols := make(map[string]float64, len(pos.Collateral))
	for _, c := range pos.Collateral {
		vols[c.Symbol] = p.market.Volatility(c.Symbol)
	}
	return vols
}

// fallbackResult is the conservative output substituted when an assessment
// cannot be computed.
func (p *Predictor) fallbackResult() domain.TimeToBreachResult {
	return domain.TimeToBreachResult{
		TTBMinutes:          5.0,
		BreachProbability:   0.5,
		ShockScenarios:      nil,
		CriticalPriceLevels: map[string]float64{},
		Confidence:          0.1,
		CalculatedAt:        time.Now().UTC(),
		Status:              domain.AssessmentFallback,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// sortedAssets returns the simulated asset universe (all priced assets that
// appear in the position) in sorted order for reproducible iteration.
func sortedAssets(pos domain.Position, prices map[string]float64) []string {
	var out []string
	for _, asset := range pos.Assets() {
		if price, ok := prices[asset]; ok && price > 0 {
			out = append(out, asset)
		}
	}
	sort.Strings(out)
	return out
}
