package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
	"github.com/alanyoungcy/lotterykeeper/internal/service"
	"github.com/alanyoungcy/lotterykeeper/internal/vrf"
)

// LotteryService defines the methods that the lottery handler requires from
// the service layer.
type LotteryService interface {
	View(ctx context.Context) service.View
	Player(index int) (common.Address, error)
	Enter(ctx context.Context, participant common.Address, amount *big.Int) error
	CheckUpkeep(ctx context.Context) bool
	PerformUpkeep(ctx context.Context) (*big.Int, error)
	Fulfill(ctx context.Context, f vrf.Fulfillment) error
	DevFulfill(ctx context.Context, requestID *big.Int, override []*big.Int) error
	EventLog(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error)
}

// LotteryHandler serves the round, upkeep and randomness callback endpoints.
type LotteryHandler struct {
	lottery LotteryService
	logger  *slog.Logger
}

// NewLotteryHandler creates a LotteryHandler.
func NewLotteryHandler(lottery LotteryService, logger *slog.Logger) *LotteryHandler {
	return &LotteryHandler{lottery: lottery, logger: logHandler(logger, "lottery")}
}

// GetLottery returns the current round view.
// GET /api/lottery
func (h *LotteryHandler) GetLottery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.lottery.View(r.Context()))
}

// GetPlayer returns the participant at an index of the current round.
// GET /api/lottery/players/{index}
func (h *LotteryHandler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "index must be a non-negative integer")
		return
	}
	addr, err := h.lottery.Player(index)
	if err != nil {
		writeDomainError(w, r, h.logger, "get player", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"index": index, "player": addr})
}

// enterRequest is the body of an entry. Exactly one of the amounts is set.
type enterRequest struct {
	Participant string `json:"participant"`
	AmountWei   string `json:"amount_wei"`
	AmountEther string `json:"amount_ether"`
}

// Enter admits a participant into the open round.
// POST /api/lottery/enter
func (h *LotteryHandler) Enter(w http.ResponseWriter, r *http.Request) {
	var req enterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !common.IsHexAddress(req.Participant) {
		writeError(w, http.StatusBadRequest, "participant must be a hex address")
		return
	}

	var (
		amount *big.Int
		err    error
	)
	switch {
	case req.AmountWei != "" && req.AmountEther != "":
		writeError(w, http.StatusBadRequest, "set amount_wei or amount_ether, not both")
		return
	case req.AmountWei != "":
		amount, err = domain.ParseWei(req.AmountWei)
	case req.AmountEther != "":
		amount, err = domain.ParseEther(req.AmountEther)
	default:
		writeError(w, http.StatusBadRequest, "amount_wei or amount_ether is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	participant := common.HexToAddress(req.Participant)
	if err := h.lottery.Enter(r.Context(), participant, amount); err != nil {
		writeDomainError(w, r, h.logger, "enter", err)
		return
	}
	v := h.lottery.View(r.Context())
	writeJSON(w, http.StatusCreated, map[string]any{
		"round":             v.Round,
		"participant":       participant,
		"amount_wei":        amount.String(),
		"number_of_players": v.NumberOfPlayers,
	})
}

// CheckUpkeep reports whether a draw is due.
// POST /api/upkeep/check
func (h *LotteryHandler) CheckUpkeep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"upkeep_needed": h.lottery.CheckUpkeep(r.Context()),
		"perform_data":  "0x",
	})
}

// PerformUpkeep closes the round and requests randomness.
// POST /api/upkeep/perform
func (h *LotteryHandler) PerformUpkeep(w http.ResponseWriter, r *http.Request) {
	id, err := h.lottery.PerformUpkeep(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "perform upkeep", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"request_id": id.String()})
}

// fulfillRequest is a signed provider answer.
type fulfillRequest struct {
	RequestID   string   `json:"request_id"`
	RandomWords []string `json:"random_words"`
	Signature   string   `json:"signature"`
}

// Fulfill delivers a signed randomness answer.
// POST /api/vrf/fulfill
func (h *LotteryHandler) Fulfill(w http.ResponseWriter, r *http.Request) {
	var req fulfillRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	id, err := domain.ParseWei(req.RequestID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request_id: "+err.Error())
		return
	}
	words, err := parseWords(req.RandomWords)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, "signature: "+err.Error())
		return
	}

	err = h.lottery.Fulfill(r.Context(), vrf.Fulfillment{RequestID: id, Words: words, Signature: sig})
	if err != nil {
		writeDomainError(w, r, h.logger, "fulfill", err)
		return
	}
	writeJSON(w, http.StatusOK, h.lottery.View(r.Context()))
}

// devFulfillRequest optionally overrides the derived words.
type devFulfillRequest struct {
	RandomWords []string `json:"random_words"`
}

// DevFulfill answers a pending request through the mock coordinator.
// POST /api/dev/vrf/fulfill/{id}
func (h *LotteryHandler) DevFulfill(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseWei(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "id: "+err.Error())
		return
	}
	var req devFulfillRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	words, err := parseWords(req.RandomWords)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.lottery.DevFulfill(r.Context(), id, words); err != nil {
		writeDomainError(w, r, h.logger, "dev fulfill", err)
		return
	}
	writeJSON(w, http.StatusOK, h.lottery.View(r.Context()))
}

// eventEntry is one message of the durable event log.
type eventEntry struct {
	ID    string `json:"id"`
	Event any    `json:"event"`
}

// ListEvents replays the event log after a stream id.
// GET /api/events?after=0&count=100
func (h *LotteryHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0"
	}
	count := 100
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = min(n, 1000)
	}

	msgs, err := h.lottery.EventLog(r.Context(), after, count)
	if err != nil {
		writeDomainError(w, r, h.logger, "list events", err)
		return
	}
	out := make([]eventEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, eventEntry{ID: m.ID, Event: rawJSON(m.Payload)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func parseWords(in []string) ([]*big.Int, error) {
	words := make([]*big.Int, 0, len(in))
	for i, s := range in {
		v, err := domain.ParseWei(s)
		if err != nil {
			return nil, fmt.Errorf("random_words[%d]: %w", i, err)
		}
		words = append(words, v)
	}
	return words, nil
}
