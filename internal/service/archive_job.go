package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

const archiveLockKey = "archive:rounds"

// ArchiveJob periodically copies settled rounds older than the retention
// window to cold storage. Only one instance runs an archive at a time.
type ArchiveJob struct {
	archiver  domain.Archiver
	locks     domain.LockManager
	every     time.Duration
	retention time.Duration
	lockTTL   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiveJob creates an ArchiveJob.
func NewArchiveJob(
	archiver domain.Archiver,
	locks domain.LockManager,
	every, retention, lockTTL time.Duration,
	logger *slog.Logger,
) *ArchiveJob {
	if every <= 0 {
		every = 24 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &ArchiveJob{
		archiver:  archiver,
		locks:     locks,
		every:     every,
		retention: retention,
		lockTTL:   lockTTL,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "archive_job")),
	}
}

// Run archives once at start and then on every tick. Call in a goroutine.
func (j *ArchiveJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.every)
	defer ticker.Stop()
	for {
		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce archives rounds settled before now minus the retention window. It
// returns zero without error when another instance holds the lock.
func (j *ArchiveJob) RunOnce(ctx context.Context) (int64, error) {
	unlock, err := j.locks.Acquire(ctx, archiveLockKey, j.lockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		j.logger.DebugContext(ctx, "archive already running elsewhere")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer unlock()

	cutoff := j.now().Add(-j.retention)
	n, err := j.archiver.ArchiveRounds(ctx, cutoff)
	if err != nil {
		return n, err
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "rounds archived",
			slog.Int64("count", n),
			slog.Time("before", cutoff),
		)
	}
	return n, nil
}
