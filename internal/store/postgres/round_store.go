package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

// RoundStore implements domain.RoundStore using PostgreSQL.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a new RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

const roundSelectCols = `round, started_at, settled_at, request_id::text,
	random_word::text, players, winner_index, winner, prize::text`

// InsertEntry records one paid entry. Replays of the same (round, seq) are
// ignored.
func (s *RoundStore) InsertEntry(ctx context.Context, e domain.Entry) error {
	const query = `
		INSERT INTO entries (round, seq, participant, amount, entered_at)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT (round, seq) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query,
		e.Round, e.Seq, e.Participant.Hex(), numeric(e.Amount), e.EnteredAt,
	); err != nil {
		return fmt.Errorf("postgres: insert entry %d/%d: %w", e.Round, e.Seq, err)
	}
	return nil
}

// InsertRound records a settled round. A round is only ever settled once, so
// a replay is ignored.
func (s *RoundStore) InsertRound(ctx context.Context, r domain.RoundRecord) error {
	const query = `
		INSERT INTO rounds (
			round, started_at, settled_at, request_id, random_word,
			players, winner_index, winner, prize
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9::numeric)
		ON CONFLICT (round) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query,
		r.Round, r.StartedAt, r.SettledAt, numeric(r.RequestID), numeric(r.RandomWord),
		r.Players, r.WinnerIndex, r.Winner.Hex(), numeric(r.Prize),
	); err != nil {
		return fmt.Errorf("postgres: insert round %d: %w", r.Round, err)
	}
	return nil
}

// GetRound returns a settled round or domain.ErrNotFound.
func (s *RoundStore) GetRound(ctx context.Context, round int64) (domain.RoundRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roundSelectCols+` FROM rounds WHERE round = $1`, round)
	if err != nil {
		return domain.RoundRecord{}, fmt.Errorf("postgres: get round %d: %w", round, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRound)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RoundRecord{}, fmt.Errorf("round %d: %w", round, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RoundRecord{}, fmt.Errorf("postgres: get round %d: %w", round, err)
	}
	return rec, nil
}

// ListRounds returns settled rounds, most recent first.
func (s *RoundStore) ListRounds(ctx context.Context, opts domain.ListOpts) ([]domain.RoundRecord, error) {
	query, args := paginate(
		`SELECT `+roundSelectCols+` FROM rounds WHERE 1=1`, nil,
		"settled_at", "round DESC", opts,
	)
	return s.queryRounds(ctx, "list rounds", query, args...)
}

// ListSettledBefore returns every round settled before the cutoff, oldest
// first.
func (s *RoundStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.RoundRecord, error) {
	return s.queryRounds(ctx, "list settled rounds",
		`SELECT `+roundSelectCols+` FROM rounds WHERE settled_at < $1 ORDER BY round`, before)
}

// ListEntries returns the entries of a round in entry order.
func (s *RoundStore) ListEntries(ctx context.Context, round int64) ([]domain.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT round, seq, participant, amount::text, entered_at
		FROM entries WHERE round = $1 ORDER BY seq`, round)
	if err != nil {
		return nil, fmt.Errorf("postgres: list entries of round %d: %w", round, err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Entry, error) {
		var e domain.Entry
		var participant, amount string
		if err := row.Scan(&e.Round, &e.Seq, &participant, &amount, &e.EnteredAt); err != nil {
			return e, err
		}
		e.Participant = common.HexToAddress(participant)
		v, err := parseNumeric(amount)
		if err != nil {
			return e, err
		}
		e.Amount = v
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan entries of round %d: %w", round, err)
	}
	return entries, nil
}

func (s *RoundStore) queryRounds(ctx context.Context, op, query string, args ...any) ([]domain.RoundRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	recs, err := pgx.CollectRows(rows, scanRound)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
	}
	return recs, nil
}

func scanRound(row pgx.CollectableRow) (domain.RoundRecord, error) {
	var r domain.RoundRecord
	var requestID, word, winner, prize string
	if err := row.Scan(
		&r.Round, &r.StartedAt, &r.SettledAt, &requestID,
		&word, &r.Players, &r.WinnerIndex, &winner, &prize,
	); err != nil {
		return r, err
	}
	var err error
	if r.RequestID, err = parseNumeric(requestID); err != nil {
		return r, err
	}
	if r.RandomWord, err = parseNumeric(word); err != nil {
		return r, err
	}
	if r.Prize, err = parseNumeric(prize); err != nil {
		return r, err
	}
	r.Winner = common.HexToAddress(winner)
	return r, nil
}

var _ domain.RoundStore = (*RoundStore)(nil)
