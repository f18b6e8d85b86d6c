package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/khadira1937/xligo/internal/feed"
	"github.com/khadira1937/xligo/internal/server"
	"github.com/khadira1937/xligo/internal/server/handler"
)

// ServeMode runs the live oracle feed and the full HTTP decision API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startOracleFeed(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// WatchMode runs the live feed and the HTTP API without an executor: every
// decision is recorded and, when needed, parked for review, but nothing is
// acted on. A periodic sweep logs how many incidents are awaiting attention.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode (record-only, no execution)")

	g, ctx := errgroup.WithContext(ctx)

	a.startOracleFeed(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				open, err := deps.Incidents.ListOpen(ctx)
				if err != nil {
					a.logger.WarnContext(ctx, "watch sweep: list open incidents failed",
						slog.String("error", err.Error()))
					continue
				}
				if len(open) > 0 {
					a.logger.InfoContext(ctx, "watch sweep: incidents awaiting attention",
						slog.Int("count", len(open)))
				}
			}
		}
	})

	return g.Wait()
}

// SimulateMode replaces the oracle websocket with a synthetic random-walk
// feed. Everything downstream (model, cache, API, pipeline) behaves exactly
// as in serve mode, which makes this the development and soak-test mode.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulate mode",
		slog.Any("assets", a.cfg.Feed.Assets),
		slog.Float64("volatility", a.cfg.Feed.SimVolatility),
	)

	g, ctx := errgroup.WithContext(ctx)

	recorder := feed.NewRecorder(deps.Model, deps.PriceCache, a.logger)
	simFeed := feed.NewSimulatedFeed(
		a.cfg.Feed.SimStartPrices,
		a.cfg.Feed.SimVolatility,
		a.cfg.Feed.SimInterval.Duration,
		uint64(a.cfg.Feed.SimSeed),
		recorder.HandleTick,
		a.logger,
	)
	g.Go(func() error {
		return simFeed.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// startOracleFeed adds the websocket oracle feed goroutine to the group. The
// feed reconnects with backoff on its own; it only returns on context
// cancellation.
func (a *App) startOracleFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	recorder := feed.NewRecorder(deps.Model, deps.PriceCache, a.logger)
	wsFeed := feed.NewOracleWSFeed(
		a.cfg.Feed.WSURL,
		a.cfg.Feed.Assets,
		recorder.HandleTick,
		a.logger,
	)
	g.Go(func() error {
		defer wsFeed.Close()
		return wsFeed.Run(ctx)
	})
}

// startHTTPServer adds the API server goroutine plus a shutdown watcher to
// the group.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Decisions: handler.NewDecisionHandler(
			deps.Predictor,
			deps.Optimizer,
			deps.Validator,
			deps.Orchestrator,
			deps.Prices,
			deps.Policies,
			deps.Venues,
			a.logger,
		),
		Incidents: handler.NewIncidentHandler(deps.Incidents, deps.Plans, a.logger),
		Policies:  handler.NewPolicyHandler(deps.Policies, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:   a.cfg.Server.Port,
		APIKey: a.cfg.Server.APIKey,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
