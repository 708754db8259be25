package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lotterykeeper/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireStandalone(t *testing.T) {
	cfg := config.Defaults()
	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, deps.Ledger)
	require.NotNil(t, deps.Rounds)
	require.NotNil(t, deps.Audit)
	require.NotNil(t, deps.Notifier)
	require.Nil(t, deps.Bus)
	require.Nil(t, deps.State)
	require.Nil(t, deps.Archiver)
	require.Empty(t, deps.Checks)
	require.Equal(t, "0x000000000000000000000000000000000000dEaD", deps.House.Hex())
}

func TestBuildLotteryStandalone(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, testLogger())
	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	svc, err := a.buildLottery(context.Background(), deps)
	require.NoError(t, err)

	v := svc.View(context.Background())
	require.Equal(t, int64(1), v.Round)
	require.Equal(t, "10000000000000000", v.EntranceFee)
	require.Equal(t, uint16(3), v.RequestConfirmations)
	require.Equal(t, uint32(500000), v.CallbackGasLimit)
	require.Equal(t, uint32(1), v.NumWords)
}

func TestBuildLotteryConfiguredKey(t *testing.T) {
	cfg := config.Defaults()
	// Well-known development key; its address is fixed.
	cfg.VRF.PrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	a := New(&cfg, testLogger())
	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	svc, err := a.buildLottery(context.Background(), deps)
	require.NoError(t, err)
	require.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", svc.Lottery().Coordinator().Hex())
}

func TestBuildLotteryStreamNeedsRedis(t *testing.T) {
	cfg := config.Defaults()
	cfg.VRF.Coordinator = "stream"
	a := New(&cfg, testLogger())
	_, err := a.buildLottery(context.Background(), &Dependencies{})
	require.ErrorContains(t, err, "needs redis")
}

func TestRunStandaloneStopsOnCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Enabled = false
	a := New(&cfg, testLogger())
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := a.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "trade"
	a := New(&cfg, testLogger())
	defer a.Close()
	require.ErrorContains(t, a.Run(context.Background()), "unsupported mode")
}
