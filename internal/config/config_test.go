package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 30*time.Second, cfg.Lottery.Interval.Duration)
	require.Equal(t, "0.01", cfg.Lottery.EntranceFee)
	require.Equal(t, 3, cfg.VRF.RequestConfirmations)
	require.Equal(t, 1, cfg.VRF.NumWords)
	require.Equal(t, 500_000, cfg.VRF.CallbackGasLimit)
	require.False(t, cfg.Full())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Lottery.EntranceFee = "-1"
	cfg.VRF.NumWords = 0
	cfg.VRF.Coordinator = "chainlink"
	cfg.Payout.HouseAddress = "nope"
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8", "proxy.internal"}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"unknown mode", "log_level", "entrance_fee", "num_words", "unknown coordinator", "house_address", "proxy.internal"} {
		require.Contains(t, err.Error(), want)
	}
}

func TestValidateStreamCoordinatorNeedsFullMode(t *testing.T) {
	cfg := Defaults()
	cfg.VRF.Coordinator = "stream"
	cfg.VRF.CoordinatorAddress = "0x00000000000000000000000000000000000000aa"
	require.ErrorContains(t, cfg.Validate(), "mode full")

	cfg.Mode = "full"
	require.NoError(t, cfg.Validate())
}

func TestValidatePostgresLedgerNeedsFullMode(t *testing.T) {
	cfg := Defaults()
	cfg.Payout.Ledger = "postgres"
	require.ErrorContains(t, cfg.Validate(), "payout")

	cfg.Mode = "full"
	require.NoError(t, cfg.Validate())
}

func TestValidateRestoreNeedsDurableLedger(t *testing.T) {
	cfg := Defaults()
	require.False(t, cfg.Lottery.RestoreState)
	cfg.Lottery.RestoreState = true
	require.ErrorContains(t, cfg.Validate(), "restore_state")

	cfg.Mode = "full"
	require.ErrorContains(t, cfg.Validate(), "restore_state", "memory ledger loses the house funds on restart")

	cfg.Payout.Ledger = "postgres"
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lottery.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"

[lottery]
entrance_fee = "0.5"
interval = "2m"

[vrf]
num_words = 2

[server]
port = 9090
`), 0o600))

	t.Setenv("LOTTERY_SERVER_PORT", "9191")
	t.Setenv("LOTTERY_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("LOTTERY_VRF_SUBSCRIPTION_ID", "42")
	t.Setenv("LOTTERY_SERVER_TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")
	t.Setenv("LOTTERY_REDIS_DB", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "full", cfg.Mode)
	require.Equal(t, "0.5", cfg.Lottery.EntranceFee)
	require.Equal(t, 2*time.Minute, cfg.Lottery.Interval.Duration)
	require.Equal(t, 2, cfg.VRF.NumWords)
	require.Equal(t, 3, cfg.VRF.RequestConfirmations, "defaults survive a partial file")
	require.Equal(t, 9191, cfg.Server.Port)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.Equal(t, uint64(42), cfg.VRF.SubscriptionID)
	require.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Server.TrustedProxies)
	require.Equal(t, 0, cfg.Redis.DB, "unparseable overrides are ignored")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.VRF.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "pw"
	cfg.Server.APIKey = "key"
	cfg.Notify.TelegramToken = ""

	out := RedactedConfig(&cfg)
	require.Equal(t, "***", out.VRF.PrivateKey)
	require.Equal(t, "***", out.Postgres.Password)
	require.Equal(t, "***", out.Server.APIKey)
	require.Empty(t, out.Notify.TelegramToken)
	require.Equal(t, "deadbeef", cfg.VRF.PrivateKey)

	out.Server.CORSOrigins[0] = "mutated"
	require.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
