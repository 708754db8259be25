// Package memory holds in-process stores used by standalone mode and tests.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

// RoundStore implements domain.RoundStore in memory. Rounds and entries are
// insert-once, matching the postgres store.
type RoundStore struct {
	mu      sync.RWMutex
	rounds  map[int64]domain.RoundRecord
	entries map[int64][]domain.Entry
}

// NewRoundStore creates an empty RoundStore.
func NewRoundStore() *RoundStore {
	return &RoundStore{
		rounds:  make(map[int64]domain.RoundRecord),
		entries: make(map[int64][]domain.Entry),
	}
}

// InsertEntry records e unless (round, seq) is already present.
func (s *RoundStore) InsertEntry(_ context.Context, e domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.entries[e.Round] {
		if have.Seq == e.Seq {
			return nil
		}
	}
	e.Amount = copyInt(e.Amount)
	list := append(s.entries[e.Round], e)
	sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	s.entries[e.Round] = list
	return nil
}

// InsertRound records r unless the round is already present.
func (s *RoundStore) InsertRound(_ context.Context, r domain.RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[r.Round]; ok {
		return nil
	}
	s.rounds[r.Round] = copyRound(r)
	return nil
}

// GetRound returns a settled round or domain.ErrNotFound.
func (s *RoundStore) GetRound(_ context.Context, round int64) (domain.RoundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[round]
	if !ok {
		return domain.RoundRecord{}, fmt.Errorf("round %d: %w", round, domain.ErrNotFound)
	}
	return copyRound(r), nil
}

// ListRounds returns settled rounds, most recent first.
func (s *RoundStore) ListRounds(_ context.Context, opts domain.ListOpts) ([]domain.RoundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RoundRecord
	for _, r := range s.rounds {
		if opts.Since != nil && r.SettledAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && r.SettledAt.After(*opts.Until) {
			continue
		}
		out = append(out, copyRound(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round > out[j].Round })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ListEntries returns the entries of a round in entry order.
func (s *RoundStore) ListEntries(_ context.Context, round int64) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Entry, len(s.entries[round]))
	copy(out, s.entries[round])
	return out, nil
}

// ListSettledBefore returns rounds settled before the cutoff, oldest first.
func (s *RoundStore) ListSettledBefore(_ context.Context, before time.Time) ([]domain.RoundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RoundRecord
	for _, r := range s.rounds {
		if r.SettledAt.Before(before) {
			out = append(out, copyRound(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

func copyRound(r domain.RoundRecord) domain.RoundRecord {
	r.RequestID = copyInt(r.RequestID)
	r.RandomWord = copyInt(r.RandomWord)
	r.Prize = copyInt(r.Prize)
	return r
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

var _ domain.RoundStore = (*RoundStore)(nil)
