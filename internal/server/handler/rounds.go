package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
	"github.com/alanyoungcy/lotterykeeper/internal/service"
)

// RoundService defines the round history queries.
type RoundService interface {
	Rounds(ctx context.Context, opts domain.ListOpts) ([]domain.RoundRecord, error)
	Round(ctx context.Context, round int64) (service.RoundDetail, error)
}

// RoundHandler serves settled round history.
type RoundHandler struct {
	rounds RoundService
	logger *slog.Logger
}

// NewRoundHandler creates a RoundHandler.
func NewRoundHandler(rounds RoundService, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{rounds: rounds, logger: logHandler(logger, "rounds")}
}

// ListRounds returns settled rounds, newest first.
// GET /api/rounds?limit=50&offset=0&since=...&until=...
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.rounds.Rounds(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list rounds", err)
		return
	}
	if rounds == nil {
		rounds = []domain.RoundRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

// GetRound returns one settled round with its entries.
// GET /api/rounds/{round}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.ParseInt(r.PathValue("round"), 10, 64)
	if err != nil || round < 1 {
		writeError(w, http.StatusBadRequest, "round must be a positive integer")
		return
	}
	detail, err := h.rounds.Round(r.Context(), round)
	if err != nil {
		writeDomainError(w, r, h.logger, "get round", err)
		return
	}
	if detail.Entries == nil {
		detail.Entries = []domain.Entry{}
	}
	writeJSON(w, http.StatusOK, detail)
}
