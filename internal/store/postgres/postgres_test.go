package postgres

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

func TestDSN(t *testing.T) {
	require.Equal(t, "postgres://u:p@db:5432/lottery?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "lottery"}))
	require.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
	require.Contains(t, DSN(ClientConfig{Host: "h", Port: 6543, SSLMode: "require"}), ":6543/?sslmode=require")
}

func TestPaginate(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := paginate("SELECT * FROM rounds WHERE 1=1", nil, "settled_at", "round DESC",
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	require.Equal(t,
		"SELECT * FROM rounds WHERE 1=1 AND settled_at >= $1 ORDER BY round DESC LIMIT $2 OFFSET $3",
		query)
	require.Equal(t, []any{since, 10, 20}, args)

	query, args = paginate("SELECT * FROM t WHERE a = $1", []any{"x"}, "ts", "ts", domain.ListOpts{Limit: 5})
	require.Equal(t, "SELECT * FROM t WHERE a = $1 ORDER BY ts LIMIT $2", query)
	require.Equal(t, []any{"x", 5}, args)
}

func TestNumericRoundTrip(t *testing.T) {
	wei, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	got, err := parseNumeric(numeric(wei))
	require.NoError(t, err)
	require.Equal(t, 0, wei.Cmp(got))

	require.Equal(t, "0", numeric(nil))
	_, err = parseNumeric("1.5")
	require.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_init.sql")
	require.NoError(t, err)
	for _, table := range []string{"rounds", "entries", "accounts", "ledger_entries", "audit_log"} {
		require.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS "+table)
	}
}
