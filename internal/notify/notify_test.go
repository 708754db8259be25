package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"winner_picked", " "}, discard())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "lottery_enter", "ignored", ""))
	require.NoError(t, n.Notify(ctx, "winner_picked", "kept", ""))
	require.NoError(t, n.NotifyAll(ctx, "always", ""))
	require.Equal(t, []string{"kept", "always"}, s.titles)
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discard())
	require.NoError(t, n.Notify(context.Background(), "anything", "t", ""))
	require.Len(t, s.titles, 1)
}

func TestNotifier_OneSenderFailing(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.ErrorContains(t, err, "1 sender(s) failed")
	require.Len(t, good.titles, 1)
	require.False(t, NewNotifier(nil, nil, discard()).Enabled())
}

func TestRender(t *testing.T) {
	winner := common.HexToAddress("0x00000000000000000000000000000000000000d4")
	idx := 3
	title, msg := Render(domain.Event{
		Type:        domain.EventWinnerPicked,
		Round:       2,
		Winner:      &winner,
		Prize:       big.NewInt(40_000_000_000_000_000),
		WinnerIndex: &idx,
		Players:     4,
	})
	require.Equal(t, "Round 2: winner picked", title)
	require.Contains(t, msg, winner.Hex())
	require.Contains(t, msg, "0.04 ETH")

	_, msg = Render(domain.Event{Type: domain.EventEntryRecorded, Amount: big.NewInt(1)})
	require.Contains(t, msg, "unknown")
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTelegramSender(srv.URL, "TOKEN", "42")
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	require.Equal(t, "/botTOKEN/sendMessage", path)
	require.Equal(t, "42", got["chat_id"])
	require.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad webhook"))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.ErrorContains(t, err, "unexpected status 400")
	require.ErrorContains(t, err, "bad webhook")
}
