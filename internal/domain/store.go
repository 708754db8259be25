package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// RoundStore persists entries and settled rounds.
type RoundStore interface {
	InsertEntry(ctx context.Context, e Entry) error
	InsertRound(ctx context.Context, r RoundRecord) error
	GetRound(ctx context.Context, round int64) (RoundRecord, error)
	ListRounds(ctx context.Context, opts ListOpts) ([]RoundRecord, error)
	ListEntries(ctx context.Context, round int64) ([]Entry, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]RoundRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
