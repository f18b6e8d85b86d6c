// Package config defines the top-level configuration for the liquidation
// protection service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by XLIGO_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Feed      FeedConfig      `toml:"feed"`
	Risk      RiskConfig      `toml:"risk"`
	Optimizer OptimizerConfig `toml:"optimizer"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Venues    []VenueConfig   `toml:"venue"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PriceTTL   duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the decision
// trail archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig holds oracle feed parameters. In simulate mode the websocket
// settings are ignored and synthetic ticks are generated instead.
type FeedConfig struct {
	WSURL          string             `toml:"ws_url"`
	Assets         []string           `toml:"assets"`
	SimStartPrices map[string]float64 `toml:"sim_start_prices"`
	SimVolatility  float64            `toml:"sim_volatility"`
	SimInterval    duration           `toml:"sim_interval"`
	SimSeed        int64              `toml:"sim_seed"`
}

// RiskConfig holds risk predictor parameters.
type RiskConfig struct {
	HorizonMinutes  float64 `toml:"horizon_minutes"`
	NumSimulations  int     `toml:"n_simulations"`
	Workers         int     `toml:"workers"`
	SafetyMarginHF  float64 `toml:"safety_margin_hf"`
	ConfidenceLevel float64 `toml:"confidence_level"`
}

// OptimizerConfig holds plan optimizer parameters.
type OptimizerConfig struct {
	MinActionUSD     float64 `toml:"min_action_usd"`
	FallbackSpendUSD float64 `toml:"fallback_spend_usd"`
}

// PipelineConfig holds orchestrator parameters.
type PipelineConfig struct {
	DecisionTimeout    duration `toml:"decision_timeout"`
	LockTTL            duration `toml:"lock_ttl"`
	ImminentBreachProb float64  `toml:"imminent_breach_prob"`
	ExecutorLatency    duration `toml:"executor_latency"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// VenueConfig describes one execution venue and its cost parameters.
type VenueConfig struct {
	ID            string  `toml:"id"`
	Chain         string  `toml:"chain"`
	Name          string  `toml:"name"`
	Class         string  `toml:"class"`
	BaseFeeRate   float64 `toml:"base_fee_rate"`
	SlippageBase  float64 `toml:"slippage_base"`
	SlippageCoeff float64 `toml:"slippage_coeff"`
	GasUSD        float64 `toml:"gas_usd"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "xligo",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			PriceTTL:   duration{5 * time.Minute},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "xligo-decisions",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			Assets: []string{"ETH", "WBTC", "USDC"},
			SimStartPrices: map[string]float64{
				"ETH":  2500,
				"WBTC": 60000,
				"USDC": 1,
			},
			SimVolatility: 0.5,
			SimInterval:   duration{time.Second},
			SimSeed:       1,
		},
		Risk: RiskConfig{
			HorizonMinutes:  240,
			NumSimulations:  10000,
			Workers:         8,
			SafetyMarginHF:  1.02,
			ConfidenceLevel: 0.95,
		},
		Optimizer: OptimizerConfig{
			MinActionUSD:     10,
			FallbackSpendUSD: 100,
		},
		Pipeline: PipelineConfig{
			DecisionTimeout:    duration{30 * time.Second},
			LockTTL:            duration{2 * time.Minute},
			ImminentBreachProb: 0.5,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Notify: NotifyConfig{
			Events: []string{"breach_imminent", "plan_approved", "manual_review", "execution_error"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":    true,
	"watch":    true,
	"simulate": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validVenueClasses enumerates the accepted venue classes.
var validVenueClasses = map[string]bool{
	"dex":       true,
	"lending":   true,
	"perpetual": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, watch, simulate)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Feed
	if (c.Mode == "serve" || c.Mode == "watch") && c.Feed.WSURL == "" {
		errs = append(errs, fmt.Sprintf("feed: ws_url is required in %s mode", c.Mode))
	}
	if len(c.Feed.Assets) == 0 {
		errs = append(errs, "feed: at least one asset must be configured")
	}
	if c.Mode == "simulate" {
		if c.Feed.SimVolatility <= 0 {
			errs = append(errs, "feed: sim_volatility must be > 0 in simulate mode")
		}
		if c.Feed.SimInterval.Duration <= 0 {
			errs = append(errs, "feed: sim_interval must be > 0 in simulate mode")
		}
	}

	// Risk
	if c.Risk.HorizonMinutes <= 0 {
		errs = append(errs, "risk: horizon_minutes must be > 0")
	}
	if c.Risk.NumSimulations < 1 {
		errs = append(errs, "risk: n_simulations must be >= 1")
	}
	if c.Risk.Workers < 1 {
		errs = append(errs, "risk: workers must be >= 1")
	}
	if c.Risk.SafetyMarginHF < 1 {
		errs = append(errs, "risk: safety_margin_hf must be >= 1")
	}

	// Optimizer
	if c.Optimizer.MinActionUSD < 0 {
		errs = append(errs, "optimizer: min_action_usd must be >= 0")
	}
	if c.Optimizer.FallbackSpendUSD <= 0 {
		errs = append(errs, "optimizer: fallback_spend_usd must be > 0")
	}

	// Pipeline
	if c.Pipeline.DecisionTimeout.Duration <= 0 {
		errs = append(errs, "pipeline: decision_timeout must be > 0")
	}
	if c.Pipeline.LockTTL.Duration <= 0 {
		errs = append(errs, "pipeline: lock_ttl must be > 0")
	}
	if c.Pipeline.ImminentBreachProb <= 0 || c.Pipeline.ImminentBreachProb > 1 {
		errs = append(errs, "pipeline: imminent_breach_prob must be in (0, 1]")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Venues
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if v.ID == "" {
			errs = append(errs, fmt.Sprintf("venue[%d]: id must not be empty", i))
			continue
		}
		if seen[v.ID] {
			errs = append(errs, fmt.Sprintf("venue[%d]: duplicate id %q", i, v.ID))
		}
		seen[v.ID] = true
		if !validVenueClasses[v.Class] {
			errs = append(errs, fmt.Sprintf("venue[%d]: unknown class %q (valid: dex, lending, perpetual)", i, v.Class))
		}
		if v.BaseFeeRate < 0 || v.SlippageBase < 0 || v.SlippageCoeff < 0 || v.GasUSD < 0 {
			errs = append(errs, fmt.Sprintf("venue[%d]: cost parameters must be non-negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
