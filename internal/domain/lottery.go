package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RoundState is the lottery state machine position. The numeric values match
// the enum ordering exposed to clients (0 = open, 1 = calculating).
type RoundState uint8

const (
	RoundOpen RoundState = iota
	RoundCalculating
)

// String returns the lowercase name of the state.
func (s RoundState) String() string {
	switch s {
	case RoundOpen:
		return "open"
	case RoundCalculating:
		return "calculating"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// UpkeepNotNeededError reports why PerformUpkeep refused to act. It matches
// ErrUpkeepNotNeeded under errors.Is.
type UpkeepNotNeededError struct {
	Balance    *big.Int
	NumPlayers int
	State      RoundState
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("%s (balance=%s players=%d state=%s)",
		ErrUpkeepNotNeeded, e.Balance, e.NumPlayers, e.State)
}

// Is makes errors.Is(err, ErrUpkeepNotNeeded) succeed.
func (e *UpkeepNotNeededError) Is(target error) bool {
	return target == ErrUpkeepNotNeeded
}

// Snapshot is a serialisable copy of the whole lottery aggregate. It is used
// to persist state between restarts and to answer read queries without
// holding the aggregate lock.
type Snapshot struct {
	Round          int64            `json:"round"`
	State          RoundState       `json:"state"`
	Players        []common.Address `json:"players"`
	Balance        *big.Int         `json:"balance"`
	LastRoundStart time.Time        `json:"last_round_start"`
	PendingRequest *big.Int         `json:"pending_request,omitempty"`
	RecentWinner   common.Address   `json:"recent_winner"`
}

// Entry is one paid admission into a round.
type Entry struct {
	Round       int64          `json:"round"`
	Seq         int            `json:"seq"`
	Participant common.Address `json:"participant"`
	Amount      *big.Int       `json:"amount"`
	EnteredAt   time.Time      `json:"entered_at"`
}

// RoundRecord is the settled history of one round.
type RoundRecord struct {
	Round       int64          `json:"round"`
	StartedAt   time.Time      `json:"started_at"`
	SettledAt   time.Time      `json:"settled_at"`
	RequestID   *big.Int       `json:"request_id"`
	RandomWord  *big.Int       `json:"random_word"`
	Players     int            `json:"players"`
	WinnerIndex int            `json:"winner_index"`
	Winner      common.Address `json:"winner"`
	Prize       *big.Int       `json:"prize"`
}
