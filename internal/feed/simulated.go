package feed

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/khadira1937/xligo/internal/market"
)

// SimulatedFeed generates synthetic price ticks with geometric Brownian
// motion, one independent walk per asset. It drives the same TickHandler
// plumbing as the live oracle feed so the rest of the system cannot tell
// them apart.
type SimulatedFeed struct {
	prices   map[string]float64
	volPerYr float64
	interval time.Duration
	onTick   TickHandler
	rng      *rand.Rand
	logger   *slog.Logger
}

// NewSimulatedFeed creates a generator seeded with the given start prices.
// volPerYear is the annualized volatility applied to every asset; interval is
// the tick spacing.
func NewSimulatedFeed(start map[string]float64, volPerYear float64, interval time.Duration, seed uint64, onTick TickHandler, logger *slog.Logger) *SimulatedFeed {
	prices := make(map[string]float64, len(start))
	for asset, p := range start {
		prices[asset] = p
	}
	return &SimulatedFeed{
		prices:   prices,
		volPerYr: volPerYear,
		interval: interval,
		onTick:   onTick,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger:   logger.With(slog.String("component", "simulated_feed")),
	}
}

// Run emits ticks until ctx is cancelled.
func (f *SimulatedFeed) Run(ctx context.Context) error {
	assets := make([]string, 0, len(f.prices))
	for asset := range f.prices {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	f.logger.Info("simulated feed started",
		slog.Int("assets", len(assets)),
		slog.Duration("interval", f.interval))

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	dt := f.interval.Minutes() / market.MinutesPerYear
	sigma := f.volPerYr * math.Sqrt(dt)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for _, asset := range assets {
				z := f.rng.NormFloat64()
				price := f.prices[asset] * math.Exp(-0.5*sigma*sigma+sigma*z)
				f.prices[asset] = price

				if f.onTick != nil {
					f.onTick(ctx, PriceTick{Asset: asset, Price: price, TS: now})
				}
			}
		}
	}
}
