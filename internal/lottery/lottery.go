// Package lottery implements the raffle round state machine: paid entry,
// the upkeep predicate, the randomness request, and settlement of the
// randomness callback into a single all-or-nothing payout.
//
// A Lottery serialises every operation behind one mutex. Mutual exclusion
// between rounds does not depend on that lock: entries are only accepted
// while the round is open, and only an open round can request randomness,
// so at most one request is ever outstanding.
package lottery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
	"github.com/alanyoungcy/lotterykeeper/internal/vrf"
)

// Params are the construction-time round parameters. They never change for
// the lifetime of a Lottery.
type Params struct {
	EntranceFee          *big.Int
	Interval             time.Duration
	KeyHash              common.Hash
	SubscriptionID       uint64
	RequestConfirmations uint16
	CallbackGasLimit     uint32
	NumWords             uint32
}

func (p Params) validate() error {
	var errs []error
	if p.EntranceFee == nil || p.EntranceFee.Sign() < 0 {
		errs = append(errs, errors.New("entrance fee must be >= 0"))
	}
	if p.Interval < 0 {
		errs = append(errs, errors.New("interval must be >= 0"))
	}
	if p.NumWords == 0 {
		errs = append(errs, errors.New("num words must be >= 1"))
	}
	if p.CallbackGasLimit == 0 {
		errs = append(errs, errors.New("callback gas limit must be > 0"))
	}
	return errors.Join(errs...)
}

// Clock abstracts the time source so tests can move time forward.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Option customises a Lottery at construction.
type Option func(*Lottery)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Lottery) { l.clock = c }
}

// Collector takes payment for an entry. It runs before the entry is
// recorded; an error rejects the entry.
type Collector func(ctx context.Context, participant common.Address, amount *big.Int) error

// WithCollector sets how entry payments are taken. Without one, entries are
// recorded without moving funds.
func WithCollector(c Collector) Option {
	return func(l *Lottery) { l.collect = c }
}

// WithEventSink registers the receiver of lottery events.
func WithEventSink(s domain.EventSink) Option {
	return func(l *Lottery) { l.sink = s }
}

// Lottery is the round aggregate. The zero value is not usable; construct it
// with New.
type Lottery struct {
	mu sync.Mutex

	params      Params
	coordinator vrf.Coordinator
	payer       domain.Payer
	sink        domain.EventSink
	collect     Collector
	clock       Clock

	round          int64
	state          domain.RoundState
	players        []common.Address
	balance        *big.Int
	lastRoundStart time.Time
	pending        *big.Int
	recentWinner   common.Address
}

// New creates an open lottery for round 1 whose interval starts now.
func New(params Params, coordinator vrf.Coordinator, payer domain.Payer, opts ...Option) (*Lottery, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("lottery: invalid params: %w", err)
	}
	if coordinator == nil {
		return nil, errors.New("lottery: coordinator is required")
	}
	if payer == nil {
		return nil, errors.New("lottery: payer is required")
	}

	l := &Lottery{
		params: Params{
			EntranceFee:          new(big.Int).Set(params.EntranceFee),
			Interval:             params.Interval,
			KeyHash:              params.KeyHash,
			SubscriptionID:       params.SubscriptionID,
			RequestConfirmations: params.RequestConfirmations,
			CallbackGasLimit:     params.CallbackGasLimit,
			NumWords:             params.NumWords,
		},
		coordinator: coordinator,
		payer:       payer,
		clock:       systemClock{},
		round:       1,
		state:       domain.RoundOpen,
		balance:     new(big.Int),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastRoundStart = l.clock.Now()
	return l, nil
}

// Restore replaces the mutable round state with snap. It is meant to be called
// once at startup, before the lottery is reachable by callers.
func (l *Lottery) Restore(snap domain.Snapshot) error {
	if snap.Round < 1 {
		return fmt.Errorf("lottery: restore: invalid round %d", snap.Round)
	}
	switch snap.State {
	case domain.RoundOpen:
		if snap.PendingRequest != nil {
			return errors.New("lottery: restore: open round with a pending request")
		}
	case domain.RoundCalculating:
		if snap.PendingRequest == nil {
			return errors.New("lottery: restore: calculating round without a pending request")
		}
		if len(snap.Players) == 0 {
			return errors.New("lottery: restore: calculating round without players")
		}
	default:
		return fmt.Errorf("lottery: restore: unknown state %d", snap.State)
	}
	if snap.Balance != nil && snap.Balance.Sign() < 0 {
		return errors.New("lottery: restore: negative balance")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.round = snap.Round
	l.state = snap.State
	l.players = append([]common.Address(nil), snap.Players...)
	l.balance = new(big.Int)
	if snap.Balance != nil {
		l.balance.Set(snap.Balance)
	}
	l.lastRoundStart = snap.LastRoundStart
	l.pending = nil
	if snap.PendingRequest != nil {
		l.pending = new(big.Int).Set(snap.PendingRequest)
	}
	l.recentWinner = snap.RecentWinner
	return nil
}

// Enter admits participant into the current round for amount wei. The same
// participant may enter any number of times; each entry is a separate chance.
// The payment is collected after validation and before the entry is recorded,
// so a failed collection leaves the round untouched.
func (l *Lottery) Enter(ctx context.Context, participant common.Address, amount *big.Int) error {
	if amount == nil {
		amount = new(big.Int)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != domain.RoundOpen {
		return domain.ErrNotOpen
	}
	if amount.Cmp(l.params.EntranceFee) < 0 {
		return fmt.Errorf("%w: sent %s, fee %s", domain.ErrInsufficientPayment, amount, l.params.EntranceFee)
	}
	if l.collect != nil {
		if err := l.collect(ctx, participant, amount); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrPaymentFailed, err)
		}
	}

	l.players = append(l.players, participant)
	l.balance.Add(l.balance, amount)

	p := participant
	l.emit(ctx, domain.Event{
		Type:        domain.EventEntryRecorded,
		Participant: &p,
		Amount:      new(big.Int).Set(amount),
		Players:     len(l.players),
	})
	return nil
}

// emit stamps and forwards evt to the sink. Callers hold l.mu, which keeps
// events in commit order.
func (l *Lottery) emit(ctx context.Context, evt domain.Event) {
	if l.sink == nil {
		return
	}
	evt.ID = uuid.New().String()
	if evt.Round == 0 {
		evt.Round = l.round
	}
	evt.At = l.clock.Now()
	l.sink.Emit(ctx, evt)
}
