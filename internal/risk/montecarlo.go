package risk

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/khadira1937/xligo/internal/domain"
	"github.com/khadira1937/xligo/internal/market"
)

// simAsset is one simulated asset: its starting price, volatility terms, and
// how it contributes to the portfolio health factor.
type simAsset struct {
	price     float64
	drift     float64 // -0.5 sigma^2 dt per step
	diffusion float64 // sigma * sqrt(dt) per step
	collQty   float64 // collateral units held
	debtQty   float64 // debt units owed
}

// simulateBreach runs nSims independent GBM price paths over horizon
// one-minute steps and reports the fraction of paths whose health factor
// crossed the safety margin together with the mean breach time. The third
// return value is false when no paths were simulated (zero horizon or zero
// simulations), in which case the probability is 0 and the expected breach
// time defaults to the horizon.
//
// Each path draws from its own generator seeded by (seed, path index), so
// results are reproducible and independent of the worker count.
func (p *Predictor) simulateBreach(ctx context.Context, pos domain.Position, prices map[string]float64, vols map[string]float64, horizon float64, nSims int, seed uint64) (breachProb, expectedTTB float64, simulated bool) {
	steps := int(horizon)
	if steps <= 0 || nSims <= 0 {
		return 0, horizon, false
	}

	assets := p.buildSimAssets(pos, prices, vols)
	if len(assets) == 0 {
		return 0, horizon, false
	}

	lt := pos.LiquidationThreshold
	margin := p.cfg.SafetyMarginHF

	var (
		mu          sync.Mutex
		breached    int
		breachSteps int64
	)

	workers := p.cfg.Workers
	if workers > nSims {
		workers = nSims
	}
	chunk := (nSims + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, nSims)
		if lo >= hi {
			break
		}
		g.Go(func() error {
			var localBreached int
			var localSteps int64
			state := make([]float64, len(assets))

			for path := lo; path < hi; path++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				rng := rand.New(rand.NewPCG(seed, uint64(path)+1))
				step, ok := runPath(rng, assets, state, steps, lt, margin)
				if ok {
					localBreached++
					localSteps += int64(step)
				}
			}

			mu.Lock()
			breached += localBreached
			breachSteps += localSteps
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.logger.WarnContext(ctx, "simulation interrupted",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
		// Partial sums from completed workers still give a usable, if
		// conservative-leaning, estimate.
	}

	breachProb = float64(breached) / float64(nSims)
	if breached > 0 {
		expectedTTB = float64(breachSteps) / float64(breached)
	} else {
		expectedTTB = horizon
	}
	return breachProb, expectedTTB, true
}

// runPath walks one GBM price path, recomputing the health factor each step.
// It returns the first step at which the health factor crossed the margin and
// whether a breach occurred within the horizon. state is scratch space reused
// across paths to avoid per-path allocation.
func runPath(rng *rand.Rand, assets []simAsset, state []float64, steps int, lt, margin float64) (int, bool) {
	for i := range assets {
		state[i] = assets[i].price
	}

	for t := 1; t <= steps; t++ {
		var collValue, debtValue float64
		for i := range assets {
			z := rng.NormFloat64()
			state[i] *= math.Exp(assets[i].drift + assets[i].diffusion*z)
			collValue += assets[i].collQty * state[i]
			debtValue += assets[i].debtQty * state[i]
		}
		if debtValue <= 0 {
			continue
		}
		hf := lt * collValue / debtValue
		if hf <= margin {
			return t, true
		}
	}
	return 0, false
}

// buildSimAssets flattens the position into per-asset simulation inputs.
// Assets without a positive oracle price are excluded, which conservatively
// values them at zero. Debt assets default to the conservative volatility
// when the market model has no estimate for them.
func (p *Predictor) buildSimAssets(pos domain.Position, prices map[string]float64, vols map[string]float64) []simAsset {
	dt := 1.0 / market.MinutesPerYear

	collQty := make(map[string]float64, len(pos.Collateral))
	for _, c := range pos.Collateral {
		collQty[c.Symbol] += c.Amount.InexactFloat64()
	}
	debtQty := make(map[string]float64, len(pos.Debt))
	for _, d := range pos.Debt {
		debtQty[d.Symbol] += d.Amount.InexactFloat64()
	}

	var out []simAsset
	for _, symbol := range sortedAssets(pos, prices) {
		sigma, ok := vols[symbol]
		if !ok {
			sigma = p.market.Volatility(symbol)
		}
		out = append(out, simAsset{
			price:     prices[symbol],
			drift:     -0.5 * sigma * sigma * dt,
			diffusion: sigma * math.Sqrt(dt),
			collQty:   collQty[symbol],
			debtQty:   debtQty[symbol],
		})
	}
	return out
}
