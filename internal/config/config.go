// Package config defines the top-level configuration for the lottery keeper
// and provides validation helpers.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LOTTERY_* environment variables.
type Config struct {
	Lottery  LotteryConfig  `toml:"lottery"`
	VRF      VRFConfig      `toml:"vrf"`
	Payout   PayoutConfig   `toml:"payout"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LotteryConfig holds the immutable round parameters.
type LotteryConfig struct {
	// EntranceFee is a decimal ether amount, e.g. "0.01".
	EntranceFee string   `toml:"entrance_fee"`
	Interval    duration `toml:"interval"`
	// RestoreState resumes the round saved in redis at startup. The saved
	// balance is only backed by funds in the postgres ledger, so it needs
	// mode full with payout.ledger = "postgres".
	RestoreState bool `toml:"restore_state"`
}

// VRFConfig selects the randomness coordinator and its request parameters.
type VRFConfig struct {
	// Coordinator is "mock" (in-process, development) or "stream" (external
	// oracle fed from a redis stream).
	Coordinator          string `toml:"coordinator"`
	CoordinatorAddress   string `toml:"coordinator_address"`
	KeyHash              string `toml:"key_hash"`
	SubscriptionID       uint64 `toml:"subscription_id"`
	RequestConfirmations int    `toml:"request_confirmations"`
	CallbackGasLimit     int    `toml:"callback_gas_limit"`
	NumWords             int    `toml:"num_words"`

	// Signing key of the mock coordinator. When none is set an ephemeral key
	// is generated at startup.
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PayoutConfig selects where prize money is held.
type PayoutConfig struct {
	// Ledger is "memory" or "postgres".
	Ledger       string `toml:"ledger"`
	HouseAddress string `toml:"house_address"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the periodic export of settled rounds to S3.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Every         duration `toml:"every"`
	RetentionDays int      `toml:"retention_days"`
	LockTTL       duration `toml:"lock_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards the upkeep endpoints. Empty disables the check.
	APIKey          string   `toml:"api_key"`
	EnterRateLimit  int      `toml:"enter_rate_limit"`
	EnterRateWindow duration `toml:"enter_rate_window"`
	// TrustedProxies are CIDRs or addresses of reverse proxies allowed to
	// set X-Forwarded-For. Empty means forwarding headers are ignored.
	TrustedProxies []string `toml:"trusted_proxies"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Lottery: LotteryConfig{
			EntranceFee: "0.01",
			Interval:    duration{30 * time.Second},
		},
		VRF: VRFConfig{
			Coordinator:          "mock",
			RequestConfirmations: 3,
			CallbackGasLimit:     500_000,
			NumWords:             1,
		},
		Payout: PayoutConfig{
			Ledger:       "memory",
			HouseAddress: "0x000000000000000000000000000000000000dEaD",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "lottery",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "lottery-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Every:         duration{24 * time.Hour},
			RetentionDays: 90,
			LockTTL:       duration{10 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			EnterRateLimit:  10,
			EnterRateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{string(domain.EventWinnerPicked)},
		},
		Mode:     "standalone",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"standalone": true,
	"full":       true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validProxy(v string) bool {
	v = strings.TrimSpace(v)
	if strings.Contains(v, "/") {
		_, err := netip.ParsePrefix(v)
		return err == nil
	}
	_, err := netip.ParseAddr(v)
	return err == nil
}

// Full reports whether the external services (postgres, redis, s3) are wired.
func (c *Config) Full() bool {
	return strings.EqualFold(c.Mode, "full")
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: standalone, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Lottery
	if _, err := domain.ParseEther(c.Lottery.EntranceFee); err != nil {
		errs = append(errs, "lottery: entrance_fee: "+err.Error())
	}
	if c.Lottery.Interval.Duration < 0 {
		errs = append(errs, "lottery: interval must be >= 0")
	}
	if c.Lottery.RestoreState && (!c.Full() || !strings.EqualFold(c.Payout.Ledger, "postgres")) {
		errs = append(errs, "lottery: restore_state needs mode full and the postgres ledger")
	}

	// VRF
	switch strings.ToLower(c.VRF.Coordinator) {
	case "mock":
		if c.VRF.EncryptedKeyPath != "" && c.VRF.KeyPassword == "" {
			errs = append(errs, "vrf: key_password is required when encrypted_key_path is set")
		}
	case "stream":
		if !common.IsHexAddress(c.VRF.CoordinatorAddress) {
			errs = append(errs, "vrf: coordinator_address must be a hex address for the stream coordinator")
		}
		if !c.Full() {
			errs = append(errs, "vrf: the stream coordinator needs redis (mode full)")
		}
	default:
		errs = append(errs, fmt.Sprintf("vrf: unknown coordinator %q (valid: mock, stream)", c.VRF.Coordinator))
	}
	if c.VRF.KeyHash != "" && len(common.FromHex(c.VRF.KeyHash)) != common.HashLength {
		errs = append(errs, "vrf: key_hash must be 32 bytes of hex")
	}
	if c.VRF.RequestConfirmations < 0 || c.VRF.RequestConfirmations > 65535 {
		errs = append(errs, "vrf: request_confirmations must be 0-65535")
	}
	if c.VRF.CallbackGasLimit <= 0 {
		errs = append(errs, "vrf: callback_gas_limit must be > 0")
	}
	if c.VRF.NumWords < 1 {
		errs = append(errs, "vrf: num_words must be >= 1")
	}

	// Payout
	switch strings.ToLower(c.Payout.Ledger) {
	case "memory":
	case "postgres":
		if !c.Full() {
			errs = append(errs, "payout: the postgres ledger needs mode full")
		}
	default:
		errs = append(errs, fmt.Sprintf("payout: unknown ledger %q (valid: memory, postgres)", c.Payout.Ledger))
	}
	if !common.IsHexAddress(c.Payout.HouseAddress) {
		errs = append(errs, "payout: house_address must be a hex address")
	}

	if c.Full() {
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
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}

		// S3
		if c.Archive.Enabled {
			if c.S3.Endpoint == "" {
				errs = append(errs, "s3: endpoint must not be empty")
			}
			if c.S3.Bucket == "" {
				errs = append(errs, "s3: bucket must not be empty")
			}
		}
	}

	// Archive
	if c.Archive.Enabled {
		if !c.Full() {
			errs = append(errs, "archive: needs mode full")
		}
		if c.Archive.Every.Duration <= 0 {
			errs = append(errs, "archive: every must be > 0")
		}
		if c.Archive.RetentionDays < 0 {
			errs = append(errs, "archive: retention_days must be >= 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.EnterRateLimit < 0 {
			errs = append(errs, "server: enter_rate_limit must be >= 0")
		}
		for _, p := range c.Server.TrustedProxies {
			if !validProxy(p) {
				errs = append(errs, fmt.Sprintf("server: trusted_proxies: %q is not an address or CIDR", p))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
