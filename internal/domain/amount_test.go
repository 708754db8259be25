package domain

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEther(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0.01", "10000000000000000"},
		{"1", "1000000000000000000"},
		{" 2.5 ", "2500000000000000000"},
		{"0.000000000000000001", "1"},
		{"0", "0"},
	}
	for _, tc := range cases {
		got, err := ParseEther(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got.String(), tc.in)
	}

	for _, bad := range []string{
		"", "abc", "-1", "+1", ".", "1.2.3", "0.0000000000000000001",
		"1/100", "1e-2", "1E2", "0x10", "1_000",
	} {
		_, err := ParseEther(bad)
		require.Error(t, err, bad)
	}
}

func TestFormatEther(t *testing.T) {
	require.Equal(t, "0.01", FormatEther(big.NewInt(10_000_000_000_000_000)))
	require.Equal(t, "0.04", FormatEther(big.NewInt(40_000_000_000_000_000)))
	require.Equal(t, "1", FormatEther(big.NewInt(1_000_000_000_000_000_000)))
	require.Equal(t, "0", FormatEther(new(big.Int)))
	require.Equal(t, "0", FormatEther(nil))
}

func TestParseWei(t *testing.T) {
	v, err := ParseWei("10000000000000000")
	require.NoError(t, err)
	require.Equal(t, "0.01", FormatEther(v))

	_, err = ParseWei("-5")
	require.Error(t, err)
	_, err = ParseWei("1e18")
	require.Error(t, err)
}

func TestUpkeepNotNeededError(t *testing.T) {
	var err error = &UpkeepNotNeededError{Balance: big.NewInt(0), NumPlayers: 0, State: RoundCalculating}
	wrapped := fmt.Errorf("perform: %w", err)

	require.ErrorIs(t, wrapped, ErrUpkeepNotNeeded)
	require.NotErrorIs(t, wrapped, ErrNotOpen)
	require.Contains(t, err.Error(), "state=calculating")

	var detail *UpkeepNotNeededError
	require.True(t, errors.As(wrapped, &detail))
	require.Equal(t, RoundCalculating, detail.State)
}

func TestRoundStateString(t *testing.T) {
	require.Equal(t, "open", RoundOpen.String())
	require.Equal(t, "calculating", RoundCalculating.String())
	require.Equal(t, "unknown(9)", RoundState(9).String())
}
