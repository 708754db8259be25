package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

// ArchiveLister lists archived objects under a prefix.
type ArchiveLister interface {
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// ArchiveHandler lists round archives in object storage.
type ArchiveHandler struct {
	blobs  ArchiveLister
	prefix string
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler listing objects under prefix.
func NewArchiveHandler(blobs ArchiveLister, prefix string, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, prefix: prefix, logger: logHandler(logger, "archives")}
}

// ListArchives returns the archive objects.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	objects, err := h.blobs.List(r.Context(), h.prefix)
	if err != nil {
		writeDomainError(w, r, h.logger, "list archives", err)
		return
	}
	if objects == nil {
		objects = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": objects})
}
