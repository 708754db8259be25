package redis

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, &Client{rdb: rdb}
}

func TestStateCache_RoundTrip(t *testing.T) {
	_, c := setupTestRedis(t)
	cache := NewStateCache(c)
	ctx := context.Background()

	_, err := cache.Load(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	snap := domain.Snapshot{
		Round:          4,
		State:          domain.RoundCalculating,
		Players:        []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")},
		Balance:        big.NewInt(20_000_000_000_000_000),
		LastRoundStart: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		PendingRequest: big.NewInt(7),
		RecentWinner:   common.HexToAddress("0x03"),
	}
	require.NoError(t, cache.Save(ctx, snap))

	got, err := cache.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, snap.Round, got.Round)
	require.Equal(t, snap.State, got.State)
	require.Equal(t, snap.Players, got.Players)
	require.Equal(t, 0, snap.Balance.Cmp(got.Balance))
	require.Equal(t, 0, snap.PendingRequest.Cmp(got.PendingRequest))
	require.True(t, snap.LastRoundStart.Equal(got.LastRoundStart))
	require.Equal(t, snap.RecentWinner, got.RecentWinner)
}

func TestSequence_StartsAtOne(t *testing.T) {
	_, c := setupTestRedis(t)
	seq := NewSequence(c)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := seq.Next(ctx, "vrf:request_id")
		require.NoError(t, err)
		require.Equal(t, want, n)
	}
	n, err := seq.Next(ctx, "other")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestLockManager(t *testing.T) {
	mr, c := setupTestRedis(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "archive", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "archive", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "archive", time.Second)
	require.NoError(t, err)

	// Expired holder must not release a lock someone else now holds.
	mr.FastForward(2 * time.Second)
	unlock3, err := lm.Acquire(ctx, "archive", time.Minute)
	require.NoError(t, err)
	unlock2()
	require.True(t, mr.Exists("lock:archive"))
	unlock3()
	require.False(t, mr.Exists("lock:archive"))
}

func TestRateLimiter(t *testing.T) {
	_, c := setupTestRedis(t)
	rl := NewRateLimiter(c)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "enter:1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "enter:1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = rl.Allow(ctx, "enter:5.6.7.8", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(61 * time.Second)
	ok, err = rl.Allow(ctx, "enter:1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSignalBus_Streams(t *testing.T) {
	_, c := setupTestRedis(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	msgs, err := bus.StreamRead(ctx, "lottery:events:log", "0", 10)
	require.NoError(t, err)
	require.Empty(t, msgs)

	require.NoError(t, bus.StreamAppend(ctx, "lottery:events:log", []byte(`{"type":"lottery_enter"}`)))
	require.NoError(t, bus.StreamAppend(ctx, "lottery:events:log", []byte(`{"type":"winner_picked"}`)))

	msgs, err = bus.StreamRead(ctx, "lottery:events:log", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.JSONEq(t, `{"type":"lottery_enter"}`, string(msgs[0].Payload))

	rest, err := bus.StreamRead(ctx, "lottery:events:log", msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.JSONEq(t, `{"type":"winner_picked"}`, string(rest[0].Payload))
}

func TestSignalBus_PubSub(t *testing.T) {
	_, c := setupTestRedis(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "lottery:events")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "lottery:events", []byte("hello")))
	select {
	case got := <-ch:
		require.Equal(t, "hello", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
