package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
	"github.com/alanyoungcy/lotterykeeper/internal/service"
	"github.com/alanyoungcy/lotterykeeper/internal/vrf"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string         `json:"error"`
	Code   string         `json:"code,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError maps a service error to its HTTP status. Unknown errors are
// logged and reported as a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	var notNeeded *domain.UpkeepNotNeededError
	switch {
	case errors.As(err, &notNeeded):
		status, body.Code = http.StatusConflict, "upkeep_not_needed"
		body.Detail = map[string]any{
			"balance_wei": notNeeded.Balance.String(),
			"players":     notNeeded.NumPlayers,
			"state":       notNeeded.State.String(),
			"state_code":  uint8(notNeeded.State),
		}
	case errors.Is(err, domain.ErrUpkeepNotNeeded):
		status, body.Code = http.StatusConflict, "upkeep_not_needed"
	case errors.Is(err, domain.ErrInsufficientPayment):
		status, body.Code = http.StatusPaymentRequired, "insufficient_payment"
	case errors.Is(err, domain.ErrNotOpen):
		status, body.Code = http.StatusConflict, "not_open"
	case errors.Is(err, domain.ErrUnknownRequest):
		status, body.Code = http.StatusConflict, "unknown_request"
	case errors.Is(err, vrf.ErrNonexistentRequest):
		status, body.Code = http.StatusNotFound, "nonexistent_request"
	case errors.Is(err, domain.ErrUnauthorizedCaller):
		status, body.Code = http.StatusForbidden, "unauthorized_caller"
	case errors.Is(err, domain.ErrNoRandomWords):
		status, body.Code = http.StatusBadRequest, "no_random_words"
	case errors.Is(err, domain.ErrPaymentFailed):
		status, body.Code = http.StatusBadGateway, "payment_failed"
	case errors.Is(err, domain.ErrTransferFailed):
		status, body.Code = http.StatusBadGateway, "transfer_failed"
	case errors.Is(err, domain.ErrIndexOutOfRange):
		status, body.Code = http.StatusNotFound, "index_out_of_range"
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, service.ErrMockOnly):
		status, body.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrRateLimited):
		status, body.Code = http.StatusTooManyRequests, "rate_limited"
	default:
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		body = errorBody{Error: op + " failed"}
	}
	writeJSON(w, status, body)
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0. since/until take RFC 3339 times.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
	if t, err := time.Parse(time.RFC3339, q.Get("since")); err == nil {
		opts.Since = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("until")); err == nil {
		opts.Until = &t
	}
	return opts
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

// rawJSON embeds an already-encoded payload in a response.
func rawJSON(b []byte) json.RawMessage {
	if !json.Valid(b) {
		return json.RawMessage(strconv.Quote(string(b)))
	}
	return json.RawMessage(b)
}
