package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BELIEF_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BELIEF_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Owner, "BELIEF_OWNER")

	// Market.
	setUint64(&cfg.Market.PlatformStake, "BELIEF_MARKET_PLATFORM_STAKE")
	setUint64(&cfg.Market.MinVoteStake, "BELIEF_MARKET_MIN_VOTE_STAKE")
	setDuration(&cfg.Market.MinDuration, "BELIEF_MARKET_MIN_DURATION")
	setDuration(&cfg.Market.MaxDuration, "BELIEF_MARKET_MAX_DURATION")
	setBool(&cfg.Market.CreatorOnlyReveal, "BELIEF_MARKET_CREATOR_ONLY_REVEAL")

	// Oracle.
	setStr(&cfg.Oracle.Mode, "BELIEF_ORACLE_MODE")
	setStr(&cfg.Oracle.BaseURL, "BELIEF_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.CallbackURL, "BELIEF_ORACLE_CALLBACK_URL")
	setStr(&cfg.Oracle.SignerAddress, "BELIEF_ORACLE_SIGNER_ADDRESS")
	setDuration(&cfg.Oracle.SimDelay, "BELIEF_ORACLE_SIM_DELAY")
	setStr(&cfg.Oracle.SealSecret, "BELIEF_ORACLE_SEAL_SECRET")

	// Postgres.
	setStr(&cfg.Postgres.DSN, "BELIEF_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BELIEF_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BELIEF_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BELIEF_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BELIEF_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BELIEF_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BELIEF_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BELIEF_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BELIEF_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BELIEF_POSTGRES_RUN_MIGRATIONS")

	// Redis.
	setStr(&cfg.Redis.Addr, "BELIEF_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BELIEF_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BELIEF_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BELIEF_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BELIEF_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BELIEF_REDIS_TLS_ENABLED")

	// S3.
	setBool(&cfg.S3.Enabled, "BELIEF_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BELIEF_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BELIEF_S3_REGION")
	setStr(&cfg.S3.Bucket, "BELIEF_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BELIEF_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BELIEF_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BELIEF_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BELIEF_S3_FORCE_PATH_STYLE")

	// Server.
	setInt(&cfg.Server.Port, "BELIEF_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BELIEF_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "BELIEF_SERVER_ADMIN_API_KEY")
	setInt(&cfg.Server.VoteRateLimit, "BELIEF_SERVER_VOTE_RATE_LIMIT")
	setDuration(&cfg.Server.VoteRateWindow, "BELIEF_SERVER_VOTE_RATE_WINDOW")

	// Notify.
	setStr(&cfg.Notify.TelegramToken, "BELIEF_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BELIEF_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BELIEF_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BELIEF_NOTIFY_EVENTS")

	// Top-level.
	setStr(&cfg.Mode, "BELIEF_MODE")
	setStr(&cfg.LogLevel, "BELIEF_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
