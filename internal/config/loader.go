package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration from the TOML file at path, layering environment
// variable overrides on top. A missing file is not an error: defaults plus
// environment variables are used instead. A .env file in the working
// directory is loaded first if present.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides maps XLIGO_* environment variables onto config fields.
// Only variables that are set and non-empty take effect.
func applyEnvOverrides(cfg *Config) {
	setStr("XLIGO_MODE", &cfg.Mode)
	setStr("XLIGO_LOG_LEVEL", &cfg.LogLevel)

	setStr("XLIGO_POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("XLIGO_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("XLIGO_POSTGRES_PORT", &cfg.Postgres.Port)
	setStr("XLIGO_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setStr("XLIGO_POSTGRES_USER", &cfg.Postgres.User)
	setStr("XLIGO_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("XLIGO_POSTGRES_SSL_MODE", &cfg.Postgres.SSLMode)
	setBool("XLIGO_POSTGRES_RUN_MIGRATIONS", &cfg.Postgres.RunMigrations)

	setBool("XLIGO_REDIS_ENABLED", &cfg.Redis.Enabled)
	setStr("XLIGO_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("XLIGO_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("XLIGO_REDIS_DB", &cfg.Redis.DB)
	setBool("XLIGO_REDIS_TLS_ENABLED", &cfg.Redis.TLSEnabled)
	setDuration("XLIGO_REDIS_PRICE_TTL", &cfg.Redis.PriceTTL)

	setBool("XLIGO_S3_ENABLED", &cfg.S3.Enabled)
	setStr("XLIGO_S3_ENDPOINT", &cfg.S3.Endpoint)
	setStr("XLIGO_S3_REGION", &cfg.S3.Region)
	setStr("XLIGO_S3_BUCKET", &cfg.S3.Bucket)
	setStr("XLIGO_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setStr("XLIGO_S3_SECRET_KEY", &cfg.S3.SecretKey)

	setStr("XLIGO_FEED_WS_URL", &cfg.Feed.WSURL)
	setStringSlice("XLIGO_FEED_ASSETS", &cfg.Feed.Assets)
	setFloat64("XLIGO_FEED_SIM_VOLATILITY", &cfg.Feed.SimVolatility)
	setDuration("XLIGO_FEED_SIM_INTERVAL", &cfg.Feed.SimInterval)
	setInt64("XLIGO_FEED_SIM_SEED", &cfg.Feed.SimSeed)

	setFloat64("XLIGO_RISK_HORIZON_MINUTES", &cfg.Risk.HorizonMinutes)
	setInt("XLIGO_RISK_N_SIMULATIONS", &cfg.Risk.NumSimulations)
	setInt("XLIGO_RISK_WORKERS", &cfg.Risk.Workers)
	setFloat64("XLIGO_RISK_SAFETY_MARGIN_HF", &cfg.Risk.SafetyMarginHF)
	setFloat64("XLIGO_RISK_CONFIDENCE_LEVEL", &cfg.Risk.ConfidenceLevel)

	setFloat64("XLIGO_OPTIMIZER_MIN_ACTION_USD", &cfg.Optimizer.MinActionUSD)
	setFloat64("XLIGO_OPTIMIZER_FALLBACK_SPEND_USD", &cfg.Optimizer.FallbackSpendUSD)

	setDuration("XLIGO_PIPELINE_DECISION_TIMEOUT", &cfg.Pipeline.DecisionTimeout)
	setDuration("XLIGO_PIPELINE_LOCK_TTL", &cfg.Pipeline.LockTTL)
	setFloat64("XLIGO_PIPELINE_IMMINENT_BREACH_PROB", &cfg.Pipeline.ImminentBreachProb)
	setDuration("XLIGO_PIPELINE_EXECUTOR_LATENCY", &cfg.Pipeline.ExecutorLatency)

	setBool("XLIGO_SERVER_ENABLED", &cfg.Server.Enabled)
	setInt("XLIGO_SERVER_PORT", &cfg.Server.Port)
	setStr("XLIGO_SERVER_API_KEY", &cfg.Server.APIKey)

	setStr("XLIGO_NOTIFY_TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setStr("XLIGO_NOTIFY_TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setStr("XLIGO_NOTIFY_DISCORD_WEBHOOK_URL", &cfg.Notify.DiscordWebhookURL)
	setStringSlice("XLIGO_NOTIFY_EVENTS", &cfg.Notify.Events)
}

func setStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
