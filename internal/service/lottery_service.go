package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
	"github.com/alanyoungcy/lotterykeeper/internal/lottery"
	"github.com/alanyoungcy/lotterykeeper/internal/notify"
	"github.com/alanyoungcy/lotterykeeper/internal/vrf"
)

const (
	// EventsChannel carries every lottery event as JSON for live subscribers.
	EventsChannel = "lottery:events"
	// EventsStream is the durable, replayable event log.
	EventsStream = "lottery:events:log"
)

// ErrMockOnly is returned by DevFulfill when no mock coordinator is wired.
var ErrMockOnly = errors.New("service: only available with the mock coordinator")

// Deps are the collaborators of LotteryService. Only Ledger is required; every
// other side effect is skipped when its dependency is nil.
type Deps struct {
	Ledger   domain.Ledger
	House    common.Address
	Rounds   domain.RoundStore
	Audit    domain.AuditStore
	State    domain.StateCache
	Bus      domain.SignalBus
	Notifier *notify.Notifier
	Mock     *vrf.MockCoordinator
}

// LotteryService wraps the round aggregate. Callers go through it so that
// paid entries are credited to the house account, and so that every committed
// transition is published, recorded and snapshotted. Those side effects run
// on a background worker; their failures are logged and never undo a
// transition.
type LotteryService struct {
	deps   Deps
	logger *slog.Logger

	lottery *lottery.Lottery

	mu      sync.Mutex
	queue   []domain.Event
	wake    chan struct{}
	started time.Time
}

// NewLotteryService creates a service. Attach must be called with the
// aggregate before use; the aggregate is built with the service as its event
// sink, hence the two steps.
func NewLotteryService(deps Deps, logger *slog.Logger) *LotteryService {
	return &LotteryService{
		deps:   deps,
		logger: logger.With(slog.String("component", "lottery_service")),
		wake:   make(chan struct{}, 1),
	}
}

// Attach binds the aggregate.
func (s *LotteryService) Attach(l *lottery.Lottery) {
	s.lottery = l
	s.started = l.LatestTimestamp()
}

// Lottery returns the wrapped aggregate.
func (s *LotteryService) Lottery() *lottery.Lottery {
	return s.lottery
}

// Emit queues evt for the side-effect worker. It is called with the aggregate
// locked, so it only appends to the queue and never blocks.
func (s *LotteryService) Emit(_ context.Context, evt domain.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Restore loads the saved snapshot into the aggregate. A missing snapshot is
// not an error.
func (s *LotteryService) Restore(ctx context.Context) error {
	if s.deps.State == nil {
		return nil
	}
	snap, err := s.deps.State.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.InfoContext(ctx, "no saved lottery state, starting fresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lottery_service: load state: %w", err)
	}
	if err := s.lottery.Restore(snap); err != nil {
		return fmt.Errorf("lottery_service: restore: %w", err)
	}
	s.started = snap.LastRoundStart
	if snap.PendingRequest != nil && s.deps.Mock != nil {
		s.deps.Mock.Resume(snap.PendingRequest, s.lottery.RequestParams())
	}

	attrs := []any{
		slog.Int64("round", snap.Round),
		slog.String("state", snap.State.String()),
		slog.Int("players", len(snap.Players)),
	}
	if snap.PendingRequest != nil {
		attrs = append(attrs, slog.String("pending_request", snap.PendingRequest.String()))
	}
	s.logger.InfoContext(ctx, "lottery state restored", attrs...)
	return nil
}

// Enter admits participant. The aggregate must have been built with Collect
// as its collector so the paid amount reaches the house account.
func (s *LotteryService) Enter(ctx context.Context, participant common.Address, amount *big.Int) error {
	return s.lottery.Enter(ctx, participant, amount)
}

// Collect credits an entry payment to the house account. It runs inside the
// entry, so a failed credit rejects it.
func (s *LotteryService) Collect(ctx context.Context, participant common.Address, amount *big.Int) error {
	if err := s.deps.Ledger.Credit(ctx, s.deps.House, amount); err != nil {
		s.logger.ErrorContext(ctx, "house credit failed",
			slog.String("participant", participant.Hex()),
			slog.String("amount", amount.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// CheckUpkeep reports whether PerformUpkeep would act now.
func (s *LotteryService) CheckUpkeep(ctx context.Context) bool {
	ok, _ := s.lottery.CheckUpkeep(ctx, nil)
	return ok
}

// PerformUpkeep closes the round and requests randomness.
func (s *LotteryService) PerformUpkeep(ctx context.Context) (*big.Int, error) {
	id, err := s.lottery.PerformUpkeep(ctx, nil)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "randomness requested", slog.String("request_id", id.String()))
	return id, nil
}

// Fulfill authenticates a signed provider answer and settles the round.
func (s *LotteryService) Fulfill(ctx context.Context, f vrf.Fulfillment) error {
	return s.settled(ctx, f.RequestID, vrf.Deliver(ctx, s.lottery, f))
}

// DevFulfill answers a pending request through the mock coordinator, with
// words derived from the id unless override is non-empty.
func (s *LotteryService) DevFulfill(ctx context.Context, requestID *big.Int, override []*big.Int) error {
	if s.deps.Mock == nil {
		return ErrMockOnly
	}
	var err error
	if len(override) > 0 {
		err = s.deps.Mock.FulfillRandomWordsWithOverride(ctx, requestID, override)
	} else {
		err = s.deps.Mock.FulfillRandomWords(ctx, requestID)
	}
	return s.settled(ctx, requestID, err)
}

// settled logs the outcome of a fulfillment and raises an operator alert when
// the payout failed, since the round then stays calculating until the same
// answer is redelivered.
func (s *LotteryService) settled(ctx context.Context, requestID *big.Int, err error) error {
	if err == nil {
		return nil
	}
	s.logger.WarnContext(ctx, "fulfillment rejected",
		slog.Any("request_id", requestID),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, domain.ErrTransferFailed) && s.deps.Notifier != nil {
		if nerr := s.deps.Notifier.NotifyAll(ctx, "Lottery payout failed",
			fmt.Sprintf("request %v: %v", requestID, err)); nerr != nil {
			s.logger.WarnContext(ctx, "payout alert failed", slog.String("error", nerr.Error()))
		}
	}
	return err
}

// View is the read model of the current round.
type View struct {
	Round                int64            `json:"round"`
	State                string           `json:"state"`
	StateCode            uint8            `json:"state_code"`
	EntranceFee          string           `json:"entrance_fee_wei"`
	Interval             string           `json:"interval"`
	IntervalSeconds      float64          `json:"interval_seconds"`
	Players              []common.Address `json:"players"`
	NumberOfPlayers      int              `json:"number_of_players"`
	Balance              string           `json:"balance_wei"`
	LatestTimestamp      time.Time        `json:"latest_timestamp"`
	RecentWinner         common.Address   `json:"recent_winner"`
	PendingRequest       *string          `json:"pending_request"`
	UpkeepNeeded         bool             `json:"upkeep_needed"`
	RequestConfirmations uint16           `json:"request_confirmations"`
	NumWords             uint32           `json:"num_words"`
	CallbackGasLimit     uint32           `json:"callback_gas_limit"`
	Coordinator          common.Address   `json:"coordinator"`
}

// View returns the current round.
func (s *LotteryService) View(ctx context.Context) View {
	l := s.lottery
	snap := l.Snapshot()
	v := View{
		Round:                snap.Round,
		State:                snap.State.String(),
		StateCode:            uint8(snap.State),
		EntranceFee:          l.EntranceFee().String(),
		Interval:             l.Interval().String(),
		IntervalSeconds:      l.Interval().Seconds(),
		Players:              snap.Players,
		NumberOfPlayers:      len(snap.Players),
		Balance:              snap.Balance.String(),
		LatestTimestamp:      snap.LastRoundStart,
		RecentWinner:         snap.RecentWinner,
		UpkeepNeeded:         s.CheckUpkeep(ctx),
		RequestConfirmations: l.RequestConfirmations(),
		NumWords:             l.NumWords(),
		CallbackGasLimit:     l.CallbackGasLimit(),
		Coordinator:          l.Coordinator(),
	}
	if v.Players == nil {
		v.Players = []common.Address{}
	}
	if snap.PendingRequest != nil {
		id := snap.PendingRequest.String()
		v.PendingRequest = &id
	}
	return v
}

// Player returns the participant at index in the current round.
func (s *LotteryService) Player(index int) (common.Address, error) {
	return s.lottery.Player(index)
}

// RoundDetail is a settled round with its entries.
type RoundDetail struct {
	domain.RoundRecord
	Entries []domain.Entry `json:"entries"`
}

// Rounds lists settled rounds.
func (s *LotteryService) Rounds(ctx context.Context, opts domain.ListOpts) ([]domain.RoundRecord, error) {
	if s.deps.Rounds == nil {
		return nil, nil
	}
	return s.deps.Rounds.ListRounds(ctx, opts)
}

// Round returns a settled round with its entries.
func (s *LotteryService) Round(ctx context.Context, round int64) (RoundDetail, error) {
	if s.deps.Rounds == nil {
		return RoundDetail{}, domain.ErrNotFound
	}
	rec, err := s.deps.Rounds.GetRound(ctx, round)
	if err != nil {
		return RoundDetail{}, err
	}
	entries, err := s.deps.Rounds.ListEntries(ctx, round)
	if err != nil {
		return RoundDetail{}, fmt.Errorf("lottery_service: entries of round %d: %w", round, err)
	}
	return RoundDetail{RoundRecord: rec, Entries: entries}, nil
}

// EventLog reads the durable event stream after lastID.
func (s *LotteryService) EventLog(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	if s.deps.Bus == nil {
		return nil, nil
	}
	return s.deps.Bus.StreamRead(ctx, EventsStream, lastID, count)
}

// Run processes queued events until ctx is cancelled, then drains what is
// left with a short grace period.
func (s *LotteryService) Run(ctx context.Context) error {
	for {
		s.drain(ctx)
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			s.drain(flushCtx)
			cancel()
			return ctx.Err()
		case <-s.wake:
		}
	}
}

func (s *LotteryService) drain(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		evt := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.handle(ctx, evt)
	}
}

// handle applies every side effect of one committed event.
func (s *LotteryService) handle(ctx context.Context, evt domain.Event) {
	log := s.logger.With(
		slog.String("event", string(evt.Type)),
		slog.Int64("round", evt.Round),
	)
	warn := func(step string, err error) {
		log.WarnContext(ctx, "event side effect failed",
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
	}

	if s.deps.Bus != nil {
		payload, err := json.Marshal(evt)
		if err != nil {
			warn("marshal", err)
		} else {
			if err := s.deps.Bus.Publish(ctx, EventsChannel, payload); err != nil {
				warn("publish", err)
			}
			if err := s.deps.Bus.StreamAppend(ctx, EventsStream, payload); err != nil {
				warn("stream", err)
			}
		}
	}

	switch evt.Type {
	case domain.EventEntryRecorded:
		if s.deps.Rounds != nil && evt.Participant != nil {
			err := s.deps.Rounds.InsertEntry(ctx, domain.Entry{
				Round:       evt.Round,
				Seq:         evt.Players - 1,
				Participant: *evt.Participant,
				Amount:      evt.Amount,
				EnteredAt:   evt.At,
			})
			if err != nil {
				warn("insert entry", err)
			}
		}
	case domain.EventWinnerPicked:
		if s.deps.Rounds != nil && evt.Winner != nil && evt.WinnerIndex != nil {
			err := s.deps.Rounds.InsertRound(ctx, domain.RoundRecord{
				Round:       evt.Round,
				StartedAt:   s.started,
				SettledAt:   evt.At,
				RequestID:   evt.RequestID,
				RandomWord:  evt.RandomWord,
				Players:     evt.Players,
				WinnerIndex: *evt.WinnerIndex,
				Winner:      *evt.Winner,
				Prize:       evt.Prize,
			})
			if err != nil {
				warn("insert round", err)
			}
		}
		s.started = evt.At
		if evt.Winner != nil {
			log.InfoContext(ctx, "winner picked",
				slog.String("winner", evt.Winner.Hex()),
				slog.String("prize_wei", evt.Prize.String()),
			)
		}
	}

	if s.deps.Audit != nil {
		if err := s.deps.Audit.Log(ctx, "lottery."+string(evt.Type), auditDetail(evt)); err != nil {
			warn("audit", err)
		}
	}

	if s.deps.State != nil {
		if err := s.deps.State.Save(ctx, s.lottery.Snapshot()); err != nil {
			warn("snapshot", err)
		}
	}

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifyEvent(ctx, evt); err != nil {
			warn("notify", err)
		}
	}
}

func auditDetail(evt domain.Event) map[string]any {
	d := map[string]any{
		"id":      evt.ID,
		"round":   evt.Round,
		"players": evt.Players,
		"at":      evt.At.Format(time.RFC3339Nano),
	}
	if evt.Participant != nil {
		d["participant"] = evt.Participant.Hex()
	}
	if evt.Amount != nil {
		d["amount_wei"] = evt.Amount.String()
	}
	if evt.RequestID != nil {
		d["request_id"] = evt.RequestID.String()
	}
	if evt.Winner != nil {
		d["winner"] = evt.Winner.Hex()
	}
	if evt.Prize != nil {
		d["prize_wei"] = evt.Prize.String()
	}
	if evt.RandomWord != nil {
		d["random_word"] = evt.RandomWord.String()
	}
	if evt.WinnerIndex != nil {
		d["winner_index"] = *evt.WinnerIndex
	}
	return d
}

var _ domain.EventSink = (*LotteryService)(nil)
