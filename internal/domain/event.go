package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names a notification emitted by the lottery.
type EventType string

const (
	EventEntryRecorded       EventType = "lottery_enter"
	EventRequestedRandomness EventType = "requested_lottery_winner"
	EventWinnerPicked        EventType = "winner_picked"
)

// Event is a notification emitted after a committed state transition. Only
// the fields relevant to Type are populated.
type Event struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	Round       int64           `json:"round"`
	Participant *common.Address `json:"participant,omitempty"`
	Amount      *big.Int        `json:"amount,omitempty"`
	RequestID   *big.Int        `json:"request_id,omitempty"`
	Winner      *common.Address `json:"winner,omitempty"`
	Prize       *big.Int        `json:"prize,omitempty"`
	RandomWord  *big.Int        `json:"random_word,omitempty"`
	WinnerIndex *int            `json:"winner_index,omitempty"`
	Players     int             `json:"players"`
	At          time.Time       `json:"at"`
}

// EventSink receives lottery events after the transition that produced them
// has been committed. Implementations must not call back into the lottery.
type EventSink interface {
	Emit(ctx context.Context, evt Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, evt Event)

// Emit calls f.
func (f EventSinkFunc) Emit(ctx context.Context, evt Event) { f(ctx, evt) }
