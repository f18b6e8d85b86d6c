package feed

import (
	"context"
	"fmt"

	"github.com/khadira1937/xligo/internal/domain"
	"github.com/khadira1937/xligo/internal/market"
)

// CacheSource implements domain.PriceSource by reading the feed-backed price
// cache. The pipeline uses it in live mode so every assessment sees the most
// recent oracle snapshot.
type CacheSource struct {
	cache domain.PriceCache
}

// NewCacheSource creates a CacheSource over the given cache.
func NewCacheSource(cache domain.PriceCache) *CacheSource {
	return &CacheSource{cache: cache}
}

// Snapshot returns the latest cached prices for the requested assets. Assets
// with no cached price are omitted; downstream components treat missing
// prices as missing data, not as zero.
func (s *CacheSource) Snapshot(ctx context.Context, assets []string) (map[string]float64, error) {
	prices, err := s.cache.GetPrices(ctx, assets)
	if err != nil {
		return nil, fmt.Errorf("feed: snapshot from cache: %w", err)
	}
	return prices, nil
}

// StaticSource implements domain.PriceSource with a fixed price map. It backs
// simulation runs and tests.
type StaticSource struct {
	prices map[string]float64
}

// NewStaticSource creates a StaticSource. The map is copied.
func NewStaticSource(prices map[string]float64) *StaticSource {
	cp := make(map[string]float64, len(prices))
	for asset, p := range prices {
		cp[asset] = p
	}
	return &StaticSource{prices: cp}
}

// Snapshot returns the subset of the fixed prices covering the requested
// assets.
func (s *StaticSource) Snapshot(_ context.Context, assets []string) (map[string]float64, error) {
	out := make(map[string]float64, len(assets))
	for _, asset := range assets {
		if p, ok := s.prices[asset]; ok {
			out[asset] = p
		}
	}
	return out, nil
}

// ModelSource implements domain.PriceSource by reading the in-process market
// model. It backs deployments that run without a shared price cache.
type ModelSource struct {
	model *market.Model
}

// NewModelSource creates a ModelSource over the given model.
func NewModelSource(m *market.Model) *ModelSource {
	return &ModelSource{model: m}
}

// Snapshot returns the latest model price for each requested asset. Assets
// the model has never seen are omitted.
func (s *ModelSource) Snapshot(_ context.Context, assets []string) (map[string]float64, error) {
	out := make(map[string]float64, len(assets))
	for _, asset := range assets {
		if p, ok := s.model.LatestPrice(asset); ok {
			out[asset] = p
		}
	}
	return out, nil
}

// Compile-time interface checks.
var (
	_ domain.PriceSource = (*CacheSource)(nil)
	_ domain.PriceSource = (*StaticSource)(nil)
	_ domain.PriceSource = (*ModelSource)(nil)
)
