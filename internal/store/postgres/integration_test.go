package postgres

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

// These tests need a disposable database: every table is truncated first.
const testDSNEnv = "LOTTERY_TEST_PG_DSN"

var (
	testHouse  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	testWinner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func openTestDB(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}
	ctx := context.Background()

	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.NoError(t, c.RunMigrations(ctx))
	_, err = c.Pool().Exec(ctx,
		`TRUNCATE rounds, entries, accounts, ledger_entries, audit_log RESTART IDENTITY`)
	require.NoError(t, err)
	return c
}

func requireBalance(t *testing.T, s *LedgerStore, account common.Address, want int64) {
	t.Helper()
	got, err := s.Balance(context.Background(), account)
	require.NoError(t, err)
	require.Zero(t, got.Cmp(big.NewInt(want)), "balance of %s: got %s, want %d", account.Hex(), got, want)
}

func countLedgerEntries(t *testing.T, c *Client) int {
	t.Helper()
	var n int
	require.NoError(t, c.Pool().QueryRow(context.Background(),
		`SELECT COUNT(*) FROM ledger_entries`).Scan(&n))
	return n
}

func TestLedgerStore_TransferMovesFunds(t *testing.T) {
	c := openTestDB(t)
	ctx := context.Background()
	s := NewLedgerStore(c.Pool(), testHouse)

	require.NoError(t, s.Credit(ctx, testHouse, big.NewInt(300)))
	require.NoError(t, s.Transfer(ctx, testWinner, big.NewInt(200)))

	requireBalance(t, s, testHouse, 100)
	requireBalance(t, s, testWinner, 200)
	require.Equal(t, 2, countLedgerEntries(t, c))
}

func TestLedgerStore_FrozenWinnerMovesNothing(t *testing.T) {
	c := openTestDB(t)
	ctx := context.Background()
	s := NewLedgerStore(c.Pool(), testHouse)

	require.NoError(t, s.Credit(ctx, testHouse, big.NewInt(200)))
	require.NoError(t, s.SetFrozen(ctx, testWinner, true))

	err := s.Transfer(ctx, testWinner, big.NewInt(200))
	require.ErrorContains(t, err, "frozen")
	requireBalance(t, s, testHouse, 200)
	requireBalance(t, s, testWinner, 0)
	require.Equal(t, 1, countLedgerEntries(t, c))

	require.NoError(t, s.SetFrozen(ctx, testWinner, false))
	require.NoError(t, s.Transfer(ctx, testWinner, big.NewInt(200)))
	requireBalance(t, s, testHouse, 0)
	requireBalance(t, s, testWinner, 200)
}

func TestLedgerStore_HouseShortfall(t *testing.T) {
	c := openTestDB(t)
	ctx := context.Background()
	s := NewLedgerStore(c.Pool(), testHouse)

	err := s.Transfer(ctx, testWinner, big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrNotFound, "no house account yet")

	require.NoError(t, s.Credit(ctx, testHouse, big.NewInt(100)))
	err = s.Transfer(ctx, testWinner, big.NewInt(101))
	require.ErrorContains(t, err, "below")
	requireBalance(t, s, testHouse, 100)
	requireBalance(t, s, testWinner, 0)

	require.Error(t, s.Transfer(ctx, testWinner, big.NewInt(0)))
	require.Error(t, s.Credit(ctx, testHouse, big.NewInt(-1)))
}

func TestRoundStore_InsertOnceAndList(t *testing.T) {
	c := openTestDB(t)
	ctx := context.Background()
	s := NewRoundStore(c.Pool())

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, who := range []common.Address{testWinner, testHouse} {
		e := domain.Entry{Round: 1, Seq: i, Participant: who, Amount: big.NewInt(10), EnteredAt: start}
		require.NoError(t, s.InsertEntry(ctx, e))
		require.NoError(t, s.InsertEntry(ctx, e), "replayed entry is ignored")
	}

	first := domain.RoundRecord{
		Round: 1, StartedAt: start, SettledAt: start.Add(time.Minute),
		RequestID: big.NewInt(1), RandomWord: big.NewInt(3),
		Players: 2, WinnerIndex: 1, Winner: testHouse, Prize: big.NewInt(20),
	}
	require.NoError(t, s.InsertRound(ctx, first))
	replay := first
	replay.Winner = testWinner
	require.NoError(t, s.InsertRound(ctx, replay))

	second := first
	second.Round, second.RequestID = 2, big.NewInt(2)
	second.StartedAt, second.SettledAt = start.Add(time.Hour), start.Add(2*time.Hour)
	require.NoError(t, s.InsertRound(ctx, second))

	got, err := s.GetRound(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, testHouse, got.Winner, "first settlement wins")
	require.Zero(t, got.Prize.Cmp(big.NewInt(20)))
	require.True(t, got.SettledAt.Equal(first.SettledAt))

	_, err = s.GetRound(ctx, 9)
	require.ErrorIs(t, err, domain.ErrNotFound)

	all, err := s.ListRounds(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, int64(2), all[0].Round)

	old, err := s.ListSettledBefore(ctx, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, old, 1)
	require.Equal(t, int64(1), old[0].Round)

	entries, err := s.ListEntries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, testWinner, entries[0].Participant)
	require.Equal(t, 1, entries[1].Seq)
}

func TestAuditStore_LogAndList(t *testing.T) {
	c := openTestDB(t)
	ctx := context.Background()
	s := NewAuditStore(c.Pool())

	require.NoError(t, s.Log(ctx, "lottery.entry_recorded", map[string]any{"participant": testWinner.Hex()}))
	require.NoError(t, s.Log(ctx, "lottery.winner_picked", map[string]any{"winner": testWinner.Hex()}))

	entries, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "lottery.winner_picked", entries[0].Event)
	require.Equal(t, testWinner.Hex(), entries[0].Detail["winner"])

	limited, err := s.List(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "lottery.entry_recorded", limited[0].Event)
}
