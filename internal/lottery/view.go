package lottery

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

// EntranceFee returns the minimum entry amount in wei.
func (l *Lottery) EntranceFee() *big.Int {
	return new(big.Int).Set(l.params.EntranceFee)
}

// Interval returns the minimum round duration.
func (l *Lottery) Interval() time.Duration {
	return l.params.Interval
}

// RequestConfirmations returns the confirmation depth sent with requests.
func (l *Lottery) RequestConfirmations() uint16 {
	return l.params.RequestConfirmations
}

// NumWords returns the number of random words requested per round.
func (l *Lottery) NumWords() uint32 {
	return l.params.NumWords
}

// CallbackGasLimit returns the callback budget sent with requests.
func (l *Lottery) CallbackGasLimit() uint32 {
	return l.params.CallbackGasLimit
}

// Coordinator returns the address allowed to deliver randomness.
func (l *Lottery) Coordinator() common.Address {
	return l.coordinator.Address()
}

// State returns the current round state.
func (l *Lottery) State() domain.RoundState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Player returns the participant at entry position index.
func (l *Lottery) Player(index int) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.players) {
		return common.Address{}, domain.ErrIndexOutOfRange
	}
	return l.players[index], nil
}

// NumberOfPlayers returns the number of entries in the current round.
func (l *Lottery) NumberOfPlayers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.players)
}

// RecentWinner returns the winner of the last settled round.
func (l *Lottery) RecentWinner() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recentWinner
}

// LatestTimestamp returns when the current round started.
func (l *Lottery) LatestTimestamp() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastRoundStart
}

// Balance returns the accumulated round balance in wei.
func (l *Lottery) Balance() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance)
}

// PendingRequest returns the outstanding request id, or nil.
func (l *Lottery) PendingRequest() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return nil
	}
	return new(big.Int).Set(l.pending)
}

// Round returns the current round number, starting at 1.
func (l *Lottery) Round() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.round
}

// Snapshot returns a deep copy of the round state.
func (l *Lottery) Snapshot() domain.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := domain.Snapshot{
		Round:          l.round,
		State:          l.state,
		Players:        append([]common.Address(nil), l.players...),
		Balance:        new(big.Int).Set(l.balance),
		LastRoundStart: l.lastRoundStart,
		RecentWinner:   l.recentWinner,
	}
	if l.pending != nil {
		snap.PendingRequest = new(big.Int).Set(l.pending)
	}
	return snap
}
