package optimizer

import (
	"math"

	"github.com/khadira1937/xligo/internal/domain"
)

// slippageFlatThresholdUSD is the trade size below which slippage is a flat
// rate; larger trades pay base + k·√size.
const slippageFlatThresholdUSD = 1000.0

// slippageRate returns the slippage fraction for routing sizeUSD through the
// venue.
func slippageRate(v domain.Venue, sizeUSD float64) float64 {
	if sizeUSD <= slippageFlatThresholdUSD {
		return v.SlippageBase
	}
	return v.SlippageBase + v.SlippageCoeff*math.Sqrt(sizeUSD)
}

// actionCost computes the all-in USD cost of routing principalUSD through the
// venue: principal × (base fee + slippage) + flat gas.
func actionCost(v domain.Venue, principalUSD float64) (cost, gas, slippage float64) {
	slippage = slippageRate(v, principalUSD)
	cost = principalUSD*(v.BaseFeeRate+slippage) + v.GasUSD
	return cost, v.GasUSD, slippage
}

// DefaultVenues is the built-in venue set used when the caller supplies none.
// Fee and gas profiles differ per venue class: DEX swaps pay the highest fees,
// lending markets the lowest, perpetuals sit in between with cheap gas.
func DefaultVenues() []domain.Venue {
	return []domain.Venue{
		{
			ID:            "uniswap_v3",
			Chain:         "ethereum",
			Name:          "Uniswap V3",
			Class:         domain.VenueDEX,
			BaseFeeRate:   0.0030,
			SlippageBase:  0.0010,
			SlippageCoeff: 5e-6,
			GasUSD:        12,
		},
		{
			ID:            "aave_v3",
			Chain:         "ethereum",
			Name:          "Aave V3",
			Class:         domain.VenueLending,
			BaseFeeRate:   0.0010,
			SlippageBase:  0.0005,
			SlippageCoeff: 2e-6,
			GasUSD:        8,
		},
		{
			ID:            "hyperliquid",
			Chain:         "arbitrum",
			Name:          "Hyperliquid",
			Class:         domain.VenuePerpetual,
			BaseFeeRate:   0.0008,
			SlippageBase:  0.0010,
			SlippageCoeff: 4e-6,
			GasUSD:        5,
		},
	}
}

// chooseVenue picks the policy-allowed venue of the preferred class with the
// lowest cost at a reference trade size, falling back to any allowed venue
// when the preferred class has none. It returns false when the policy blocks
// every venue.
func chooseVenue(venues []domain.Venue, policy domain.Policy, preferred domain.VenueClass, refSizeUSD float64) (domain.Venue, bool) {
	best, ok := cheapestOfClass(venues, policy, preferred, refSizeUSD)
	if ok {
		return best, true
	}
	return cheapestOfClass(venues, policy, "", refSizeUSD)
}

// requireVenueClass is like chooseVenue but never substitutes another class.
// Hedges need a perpetual venue or nothing.
func requireVenueClass(venues []domain.Venue, policy domain.Policy, class domain.VenueClass, refSizeUSD float64) (domain.Venue, bool) {
	return cheapestOfClass(venues, policy, class, refSizeUSD)
}

func cheapestOfClass(venues []domain.Venue, policy domain.Policy, class domain.VenueClass, refSizeUSD float64) (domain.Venue, bool) {
	var best domain.Venue
	bestCost := math.Inf(1)
	found := false
	for _, v := range venues {
		if class != "" && v.Class != class {
			continue
		}
		if !policy.VenueAllowed(v.ID) {
			continue
		}
		cost, _, _ := actionCost(v, refSizeUSD)
		if cost < bestCost {
			best, bestCost, found = v, cost, true
		}
	}
	return best, found
}
