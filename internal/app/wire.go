package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/khadira1937/xligo/internal/blob/s3"
	"github.com/khadira1937/xligo/internal/cache/redis"
	"github.com/khadira1937/xligo/internal/config"
	"github.com/khadira1937/xligo/internal/domain"
	"github.com/khadira1937/xligo/internal/executor"
	"github.com/khadira1937/xligo/internal/feed"
	"github.com/khadira1937/xligo/internal/market"
	"github.com/khadira1937/xligo/internal/notify"
	"github.com/khadira1937/xligo/internal/optimizer"
	"github.com/khadira1937/xligo/internal/pipeline"
	"github.com/khadira1937/xligo/internal/policy"
	"github.com/khadira1937/xligo/internal/risk"
	"github.com/khadira1937/xligo/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Incidents domain.IncidentStore
	Plans     domain.PlanStore
	Policies  domain.PolicyStore

	// Caches
	PriceCache domain.PriceCache
	Locks      domain.LockManager

	// Blob storage
	Archiver domain.DecisionArchiver

	// Market state and price access
	Model  *market.Model
	Prices domain.PriceSource

	// Decision core
	Predictor    *risk.Predictor
	Optimizer    *optimizer.Optimizer
	Validator    *policy.Validator
	Orchestrator *pipeline.Orchestrator
	Venues       []domain.Venue

	// Notifications
	Notifier *notify.Notifier
}

// venuesFromConfig converts configured venues to domain venues. An empty
// config list yields nil so downstream falls back to the built-in set.
func venuesFromConfig(cfg *config.Config) []domain.Venue {
	if len(cfg.Venues) == 0 {
		return nil
	}
	out := make([]domain.Venue, 0, len(cfg.Venues))
	for _, v := range cfg.Venues {
		out = append(out, domain.Venue{
			ID:            v.ID,
			Chain:         v.Chain,
			Name:          v.Name,
			Class:         domain.VenueClass(v.Class),
			BaseFeeRate:   v.BaseFeeRate,
			SlippageBase:  v.SlippageBase,
			SlippageCoeff: v.SlippageCoeff,
			GasUSD:        v.GasUSD,
		})
	}
	return out
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Incidents = postgres.NewIncidentStore(pool)
	deps.Plans = postgres.NewPlanStore(pool)
	deps.Policies = postgres.NewPolicyStore(pool)

	// --- Market model ---
	deps.Model = market.NewModel(0)

	// --- Redis (optional; the model serves prices when disabled) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Prices = feed.NewCacheSource(deps.PriceCache)
	} else {
		deps.Prices = feed.NewModelSource(deps.Model)
	}

	// --- S3 decision archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Decision core ---
	deps.Venues = venuesFromConfig(cfg)
	deps.Predictor = risk.NewPredictor(deps.Model, risk.Config{
		HorizonMinutes:  cfg.Risk.HorizonMinutes,
		NumSimulations:  cfg.Risk.NumSimulations,
		Workers:         cfg.Risk.Workers,
		SafetyMarginHF:  cfg.Risk.SafetyMarginHF,
		ConfidenceLevel: cfg.Risk.ConfidenceLevel,
	}, logger)
	deps.Optimizer = optimizer.NewOptimizer(deps.Prices, optimizer.Config{
		MinActionUSD:     cfg.Optimizer.MinActionUSD,
		FallbackSpendUSD: cfg.Optimizer.FallbackSpendUSD,
	}, logger)
	deps.Validator = policy.NewValidator(logger)

	// Watch mode records decisions without acting on them; no executor.
	var exec domain.Executor
	if cfg.Mode != "watch" {
		exec = executor.NewSimulated(cfg.Pipeline.ExecutorLatency.Duration, logger)
	}

	deps.Orchestrator = pipeline.NewOrchestrator(pipeline.Deps{
		Predictor: deps.Predictor,
		Optimizer: deps.Optimizer,
		Validator: deps.Validator,
		Prices:    deps.Prices,
		Venues:    deps.Venues,
		Incidents: deps.Incidents,
		Plans:     deps.Plans,
		Policies:  deps.Policies,
		Locks:     deps.Locks,
		Archiver:  deps.Archiver,
		Notifier:  deps.Notifier,
		Executor:  exec,
	}, pipeline.Config{
		DecisionTimeout:    cfg.Pipeline.DecisionTimeout.Duration,
		LockTTL:            cfg.Pipeline.LockTTL.Duration,
		ImminentBreachProb: cfg.Pipeline.ImminentBreachProb,
	}, logger)

	return deps, cleanup, nil
}
