// Package market maintains rolling per-asset price history and EWMA
// volatility estimates consumed by the risk predictor.
package market

import (
	"math"
	"sync"
	"time"
)

const (
	// ewmaLambda is the RiskMetrics decay factor for the EWMA variance update.
	ewmaLambda = 0.94

	// DefaultVolatility is the conservative annualized volatility assumed for
	// assets with fewer than two observations.
	DefaultVolatility = 0.50

	// MinutesPerYear converts between annualized and per-minute volatility,
	// assuming roughly minute-cadence observations.
	MinutesPerYear = 365.25 * 24 * 60

	defaultMaxPoints = 1000
)

// PricePoint is a single price observation.
type PricePoint struct {
	Price float64
	Time  time.Time
}

type assetState struct {
	points   []PricePoint
	variance float64 // EWMA variance of per-observation log returns
	seeded   bool    // true once at least one return has been observed
}

// Model holds price history and volatility state for many assets. It is safe
// for concurrent use: many pipelines read volatilities while a single price
// ingestion path writes.
type Model struct {
	mu        sync.RWMutex
	assets    map[string]*assetState
	maxPoints int
}

// NewModel creates a Model that keeps at most maxPoints observations per
// asset. maxPoints <= 0 selects the default cap.
func NewModel(maxPoints int) *Model {
	if maxPoints <= 0 {
		maxPoints = defaultMaxPoints
	}
	return &Model{
		assets:    make(map[string]*assetState),
		maxPoints: maxPoints,
	}
}

// RecordPrice appends an observation to the asset's history and folds its log
// return into the EWMA variance. Non-positive prices are ignored.
func (m *Model) RecordPrice(asset string, price float64, ts time.Time) {
	if price <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.assets[asset]
	if !ok {
		st = &assetState{}
		m.assets[asset] = st
	}

	if n := len(st.points); n > 0 {
		prev := st.points[n-1].Price
		r := math.Log(price / prev)
		if !st.seeded {
			st.variance = r * r
			st.seeded = true
		} else {
			st.variance = ewmaLambda*st.variance + (1-ewmaLambda)*r*r
		}
	}

	st.points = append(st.points, PricePoint{Price: price, Time: ts})
	if len(st.points) > m.maxPoints {
		st.points = st.points[len(st.points)-m.maxPoints:]
	}
}

// Volatility returns the annualized EWMA volatility for the asset. Assets
// with fewer than two observations, and unknown assets, return the
// conservative default rather than an error.
func (m *Model) Volatility(asset string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.assets[asset]
	if !ok || !st.seeded {
		return DefaultVolatility
	}
	return math.Sqrt(st.variance * MinutesPerYear)
}

// HasHistory reports whether any observations exist for the asset. The
// predictor uses this as its data-quality signal.
func (m *Model) HasHistory(asset string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.assets[asset]
	return ok && len(st.points) > 0
}

// History returns a copy of the asset's retained observations, oldest first.
func (m *Model) History(asset string) []PricePoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.assets[asset]
	if !ok || len(st.points) == 0 {
		return nil
	}
	out := make([]PricePoint, len(st.points))
	copy(out, st.points)
	return out
}

// LatestPrice returns the most recent observation for the asset.
func (m *Model) LatestPrice(asset string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.assets[asset]
	if !ok || len(st.points) == 0 {
		return 0, false
	}
	return st.points[len(st.points)-1].Price, true
}
