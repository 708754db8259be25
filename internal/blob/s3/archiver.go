package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

// RoundArchiveStore is the slice of domain.RoundStore the archiver reads.
type RoundArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.RoundRecord, error)
	ListEntries(ctx context.Context, round int64) ([]domain.Entry, error)
}

// archivedRound is one JSONL line: a settled round with its entries.
type archivedRound struct {
	domain.RoundRecord
	Entries []domain.Entry `json:"entries"`
}

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 4 * minPartSize

// RoundArchiver implements domain.Archiver. Settled rounds are grouped by the
// month they settled in and written to archive/rounds/YYYY-MM.jsonl. Each run
// rewrites the month files it touches with everything settled before the
// cutoff, so reruns are idempotent. Rows are not deleted from the primary
// store.
type RoundArchiver struct {
	writer domain.BlobWriter
	rounds RoundArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates a RoundArchiver.
func NewArchiver(writer domain.BlobWriter, rounds RoundArchiveStore, audit domain.AuditStore) *RoundArchiver {
	return &RoundArchiver{writer: writer, rounds: rounds, audit: audit}
}

// ArchiveRounds uploads every round settled before the cutoff and returns how
// many rounds were written.
func (a *RoundArchiver) ArchiveRounds(ctx context.Context, before time.Time) (int64, error) {
	rounds, err := a.rounds.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds query: %w", err)
	}
	if len(rounds) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]archivedRound)
	for _, r := range rounds {
		entries, err := a.rounds.ListEntries(ctx, r.Round)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive round %d entries: %w", r.Round, err)
		}
		month := r.SettledAt.UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], archivedRound{RoundRecord: r, Entries: entries})
	}

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	var count int64
	paths := make([]string, 0, len(months))
	for _, month := range months {
		buf, err := marshalJSONL(byMonth[month])
		if err != nil {
			return count, fmt.Errorf("s3blob: archive rounds marshal %s: %w", month, err)
		}
		path := archivePath("rounds", month)
		if int64(len(buf)) >= multipartThreshold {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
		}
		if err != nil {
			return count, fmt.Errorf("s3blob: archive rounds upload %s: %w", path, err)
		}
		count += int64(len(byMonth[month]))
		paths = append(paths, path)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.rounds", map[string]any{
			"paths":  paths,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive rounds audit log: %w", err)
		}
	}
	return count, nil
}

// ArchivePrefix is the key prefix of every archive file.
const ArchivePrefix = "archive/"

// archivePath builds the key of an archive file, e.g.
//
//	archive/rounds/2025-01.jsonl
func archivePath(kind, month string) string {
	return fmt.Sprintf("%s%s/%s.jsonl", ArchivePrefix, kind, month)
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*RoundArchiver)(nil)
