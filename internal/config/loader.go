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
// built-in defaults, applies LOTTERY_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
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

// applyEnvOverrides reads well-known LOTTERY_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Lottery ──
	setStr(&cfg.Lottery.EntranceFee, "LOTTERY_ENTRANCE_FEE")
	setDuration(&cfg.Lottery.Interval, "LOTTERY_INTERVAL")
	setBool(&cfg.Lottery.RestoreState, "LOTTERY_RESTORE_STATE")

	// ── VRF ──
	setStr(&cfg.VRF.Coordinator, "LOTTERY_VRF_COORDINATOR")
	setStr(&cfg.VRF.CoordinatorAddress, "LOTTERY_VRF_COORDINATOR_ADDRESS")
	setStr(&cfg.VRF.KeyHash, "LOTTERY_VRF_KEY_HASH")
	setUint64(&cfg.VRF.SubscriptionID, "LOTTERY_VRF_SUBSCRIPTION_ID")
	setInt(&cfg.VRF.RequestConfirmations, "LOTTERY_VRF_REQUEST_CONFIRMATIONS")
	setInt(&cfg.VRF.CallbackGasLimit, "LOTTERY_VRF_CALLBACK_GAS_LIMIT")
	setInt(&cfg.VRF.NumWords, "LOTTERY_VRF_NUM_WORDS")
	setStr(&cfg.VRF.PrivateKey, "LOTTERY_VRF_PRIVATE_KEY")
	setStr(&cfg.VRF.EncryptedKeyPath, "LOTTERY_VRF_ENCRYPTED_KEY_PATH")
	setStr(&cfg.VRF.KeyPassword, "LOTTERY_VRF_KEY_PASSWORD")

	// ── Payout ──
	setStr(&cfg.Payout.Ledger, "LOTTERY_PAYOUT_LEDGER")
	setStr(&cfg.Payout.HouseAddress, "LOTTERY_PAYOUT_HOUSE_ADDRESS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LOTTERY_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "LOTTERY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LOTTERY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LOTTERY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LOTTERY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LOTTERY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LOTTERY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LOTTERY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LOTTERY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LOTTERY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LOTTERY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LOTTERY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LOTTERY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LOTTERY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LOTTERY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LOTTERY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LOTTERY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LOTTERY_S3_REGION")
	setStr(&cfg.S3.Bucket, "LOTTERY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LOTTERY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LOTTERY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LOTTERY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LOTTERY_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LOTTERY_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Every, "LOTTERY_ARCHIVE_EVERY")
	setInt(&cfg.Archive.RetentionDays, "LOTTERY_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.LockTTL, "LOTTERY_ARCHIVE_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LOTTERY_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LOTTERY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LOTTERY_SERVER_CORS_ORIGINS")
	setStringSlice(&cfg.Server.TrustedProxies, "LOTTERY_SERVER_TRUSTED_PROXIES")
	setStr(&cfg.Server.APIKey, "LOTTERY_SERVER_API_KEY")
	setInt(&cfg.Server.EnterRateLimit, "LOTTERY_SERVER_ENTER_RATE_LIMIT")
	setDuration(&cfg.Server.EnterRateWindow, "LOTTERY_SERVER_ENTER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LOTTERY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LOTTERY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LOTTERY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LOTTERY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LOTTERY_MODE")
	setStr(&cfg.LogLevel, "LOTTERY_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses.
// ---------------------------------------------------------------------------

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
