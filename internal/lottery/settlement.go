package lottery

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
	"github.com/alanyoungcy/lotterykeeper/internal/vrf"
)

// FulfillRandomWords settles the round with the provider's answer. It is the
// only way out of the calculating state.
//
// The callback is rejected unless caller is the coordinator and requestID is
// the pending request. The winner is players[words[0] mod len(players)] over
// the list frozen since the request. The whole balance is paid out before
// anything is reset; if the payout fails nothing changes and the round stays
// calculating, so a redelivered callback can try again.
func (l *Lottery) FulfillRandomWords(ctx context.Context, caller common.Address, requestID *big.Int, words []*big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.coordinator.Address() {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorizedCaller, caller.Hex())
	}
	if l.pending == nil || requestID == nil || requestID.Cmp(l.pending) != 0 {
		return fmt.Errorf("%w: %v", domain.ErrUnknownRequest, requestID)
	}
	if len(words) == 0 || words[0] == nil {
		return domain.ErrNoRandomWords
	}

	word := new(big.Int).Set(words[0])
	idx := new(big.Int).Mod(word, big.NewInt(int64(len(l.players))))
	winnerIndex := int(idx.Int64())
	winner := l.players[winnerIndex]
	prize := new(big.Int).Set(l.balance)

	if err := l.payer.Transfer(ctx, winner, new(big.Int).Set(prize)); err != nil {
		return fmt.Errorf("%w: %s to %s: %v", domain.ErrTransferFailed, prize, winner.Hex(), err)
	}

	settledRound := l.round
	numPlayers := len(l.players)

	l.recentWinner = winner
	l.players = nil
	l.balance = new(big.Int)
	l.lastRoundStart = l.clock.Now()
	l.state = domain.RoundOpen
	l.pending = nil
	l.round++

	w := winner
	l.emit(ctx, domain.Event{
		Type:        domain.EventWinnerPicked,
		Round:       settledRound,
		Winner:      &w,
		Prize:       prize,
		RequestID:   new(big.Int).Set(requestID),
		RandomWord:  word,
		WinnerIndex: &winnerIndex,
		Players:     numPlayers,
	})
	return nil
}

var _ vrf.Consumer = (*Lottery)(nil)
