// Package config defines the top-level configuration for the belief market
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BELIEF_* environment variables.
type Config struct {
	Owner    string         `toml:"owner"`
	Market   MarketConfig   `toml:"market"`
	Oracle   OracleConfig   `toml:"oracle"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds the market economics enforced at creation time. Amounts
// are in the ledger's smallest currency unit.
type MarketConfig struct {
	PlatformStake     uint64   `toml:"platform_stake"`
	MinVoteStake      uint64   `toml:"min_vote_stake"`
	MinDuration       duration `toml:"min_duration"`
	MaxDuration       duration `toml:"max_duration"`
	CreatorOnlyReveal bool     `toml:"creator_only_reveal"`
}

// OracleConfig holds the decryption oracle parameters. Mode selects between
// the HTTP gateway ("gateway") and the in-process simulator ("sim").
type OracleConfig struct {
	Mode          string   `toml:"mode"`
	BaseURL       string   `toml:"base_url"`
	CallbackURL   string   `toml:"callback_url"`
	SignerAddress string   `toml:"signer_address"`
	SimDelay      duration `toml:"sim_delay"`
	SealSecret    string   `toml:"seal_secret"`
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for archive exports.
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	AdminAPIKey    string   `toml:"admin_api_key"`
	VoteRateLimit  int      `toml:"vote_rate_limit"`
	VoteRateWindow duration `toml:"vote_rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			PlatformStake: 20_000_000_000_000_000,
			MinVoteStake:  10_000_000_000_000_000,
			MinDuration:   duration{5 * time.Minute},
			MaxDuration:   duration{30 * 24 * time.Hour},
		},
		Oracle: OracleConfig{
			Mode:        "sim",
			CallbackURL: "http://localhost:8000/api/oracle/callback",
			SimDelay:    duration{2 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "beliefmarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "beliefmarket-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			VoteRateLimit:  30,
			VoteRateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "fees_withdrawn"},
		},
		Mode:     "sim",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"sim":   true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validOracleModes enumerates the accepted values for Config.Oracle.Mode.
var validOracleModes = map[string]bool{
	"gateway": true,
	"sim":     true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, sim, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Owner) == "" {
		errs = append(errs, "owner: the platform owner address must be set")
	}

	// Market economics.
	if c.Market.PlatformStake == 0 {
		errs = append(errs, "market: platform_stake must be > 0")
	}
	if c.Market.MinVoteStake == 0 {
		errs = append(errs, "market: min_vote_stake must be > 0")
	}
	if c.Market.MinDuration.Duration <= 0 {
		errs = append(errs, "market: min_duration must be > 0")
	}
	if c.Market.MaxDuration.Duration < c.Market.MinDuration.Duration {
		errs = append(errs, "market: max_duration must not be below min_duration")
	}

	// Oracle.
	if !validOracleModes[strings.ToLower(c.Oracle.Mode)] {
		errs = append(errs, fmt.Sprintf("oracle: unknown mode %q (valid: gateway, sim)", c.Oracle.Mode))
	}
	if strings.ToLower(c.Oracle.Mode) == "gateway" {
		if c.Oracle.BaseURL == "" {
			errs = append(errs, "oracle: base_url is required in gateway mode")
		}
		if c.Oracle.CallbackURL == "" {
			errs = append(errs, "oracle: callback_url is required in gateway mode")
		}
		if c.Oracle.SignerAddress == "" {
			errs = append(errs, "oracle: signer_address is required in gateway mode")
		}
	}

	// Postgres, only checked when a serve-capable mode needs it.
	needsPostgres := strings.ToLower(c.Mode) != "sim"
	if needsPostgres {
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

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3, only when archive exports are on.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server.
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.VoteRateLimit < 0 {
		errs = append(errs, "server: vote_rate_limit must be >= 0")
	}
	if c.Server.VoteRateLimit > 0 && c.Server.VoteRateWindow.Duration <= 0 {
		errs = append(errs, "server: vote_rate_window must be > 0 when vote_rate_limit is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
