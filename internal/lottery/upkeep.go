package lottery

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
	"github.com/alanyoungcy/lotterykeeper/internal/vrf"
)

// RequestParams returns the randomness request every round sends.
func (l *Lottery) RequestParams() vrf.RequestParams {
	return vrf.RequestParams{
		KeyHash:              l.params.KeyHash,
		SubscriptionID:       l.params.SubscriptionID,
		RequestConfirmations: l.params.RequestConfirmations,
		CallbackGasLimit:     l.params.CallbackGasLimit,
		NumWords:             l.params.NumWords,
	}
}

// CheckUpkeep reports whether the round is ready to draw: it is open, holds a
// positive balance and at least one player, and the interval has elapsed.
// checkData is accepted for interface compatibility and ignored; the returned
// performData is always empty. CheckUpkeep has no side effects.
func (l *Lottery) CheckUpkeep(_ context.Context, _ []byte) (bool, []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upkeepNeeded(), []byte{}
}

// upkeepNeeded evaluates the upkeep predicate. Callers hold l.mu.
func (l *Lottery) upkeepNeeded() bool {
	isOpen := l.state == domain.RoundOpen
	hasBalance := l.balance.Sign() > 0
	hasPlayers := len(l.players) > 0
	timePassed := l.clock.Now().Sub(l.lastRoundStart) >= l.params.Interval
	return isOpen && hasBalance && hasPlayers && timePassed
}

// PerformUpkeep closes the round and requests randomness. The predicate is
// evaluated again here; an earlier CheckUpkeep result is never trusted. On
// success the round is calculating and the returned id is the pending
// request. If the coordinator fails the round is left open.
func (l *Lottery) PerformUpkeep(ctx context.Context, _ []byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.upkeepNeeded() {
		return nil, &domain.UpkeepNotNeededError{
			Balance:    new(big.Int).Set(l.balance),
			NumPlayers: len(l.players),
			State:      l.state,
		}
	}

	l.state = domain.RoundCalculating
	requestID, err := l.coordinator.RequestRandomWords(ctx, l.RequestParams())
	if err != nil {
		l.state = domain.RoundOpen
		return nil, fmt.Errorf("lottery: request randomness: %w", err)
	}
	if requestID == nil {
		l.state = domain.RoundOpen
		return nil, fmt.Errorf("lottery: request randomness: coordinator returned no request id")
	}

	l.pending = new(big.Int).Set(requestID)
	l.emit(ctx, domain.Event{
		Type:      domain.EventRequestedRandomness,
		RequestID: new(big.Int).Set(requestID),
		Amount:    new(big.Int).Set(l.balance),
		Players:   len(l.players),
	})
	return new(big.Int).Set(requestID), nil
}
