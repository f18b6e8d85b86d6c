package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/khadira1937/xligo/internal/domain"
	"github.com/khadira1937/xligo/internal/market"
	"github.com/khadira1937/xligo/internal/metrics"
)

// Recorder fans each price tick into the in-memory market model and the
// shared price cache. It is the glue between a feed (live or simulated) and
// the decision core.
type Recorder struct {
	model  *market.Model
	cache  domain.PriceCache
	logger *slog.Logger
}

// NewRecorder creates a Recorder. cache may be nil when running without
// Redis; the market model is always updated.
func NewRecorder(model *market.Model, cache domain.PriceCache, logger *slog.Logger) *Recorder {
	return &Recorder{
		model:  model,
		cache:  cache,
		logger: logger.With(slog.String("component", "tick_recorder")),
	}
}

// HandleTick records one tick. Cache write failures are logged and dropped;
// a degraded cache must not stall the feed.
func (r *Recorder) HandleTick(ctx context.Context, tick PriceTick) {
	ts := tick.TS
	if ts.IsZero() {
		ts = time.Now()
	}

	r.model.RecordPrice(tick.Asset, tick.Price, ts)
	metrics.PriceTicksTotal.WithLabelValues(tick.Asset).Inc()

	if r.cache != nil {
		if err := r.cache.SetPrice(ctx, tick.Asset, tick.Price, ts); err != nil {
			r.logger.WarnContext(ctx, "price cache write failed",
				slog.String("asset", tick.Asset),
				slog.String("error", err.Error()))
		}
	}
}
