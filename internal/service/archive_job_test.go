package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

type fakeArchiver struct {
	calls  int
	before time.Time
	n      int64
	err    error
}

func (a *fakeArchiver) ArchiveRounds(_ context.Context, before time.Time) (int64, error) {
	a.calls++
	a.before = before
	return a.n, a.err
}

type fakeLocks struct {
	held     bool
	released int
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if key != archiveLockKey {
		return nil, errors.New("unexpected key " + key)
	}
	if l.held {
		return nil, domain.ErrLockHeld
	}
	return func() { l.released++ }, nil
}

func newTestJob(a domain.Archiver, l domain.LockManager) *ArchiveJob {
	j := NewArchiveJob(a, l, time.Hour, 90*24*time.Hour, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	j.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	return j
}

func TestArchiveJobRunOnce(t *testing.T) {
	a := &fakeArchiver{n: 3}
	l := &fakeLocks{}
	j := newTestJob(a, l)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), a.before)
	require.Equal(t, 1, l.released)
	require.Equal(t, 10*time.Minute, j.lockTTL)
}

func TestArchiveJobSkipsWhenLocked(t *testing.T) {
	a := &fakeArchiver{}
	j := newTestJob(a, &fakeLocks{held: true})

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, a.calls)
}

func TestArchiveJobReleasesOnError(t *testing.T) {
	a := &fakeArchiver{err: errors.New("s3 down")}
	l := &fakeLocks{}
	j := newTestJob(a, l)

	_, err := j.RunOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, l.released)
}

func TestArchiveJobRunStopsOnCancel(t *testing.T) {
	a := &fakeArchiver{}
	j := newTestJob(a, &fakeLocks{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, j.Run(ctx), context.Canceled)
	require.Equal(t, 1, a.calls)
}
