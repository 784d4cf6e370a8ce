package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"lendledger/core/ledger"
	nativecommon "lendledger/native/common"
	"lendledger/native/lending"
)

type errorBody struct {
	Error     errorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// toStatus maps ledger and engine failures onto HTTP statuses and stable
// error codes.
func toStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAction), errors.Is(err, ledger.ErrRankingCursor):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, lending.ErrPoolNotExist):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, nativecommon.ErrModulePaused), errors.Is(err, lending.ErrActionPaused):
		return http.StatusServiceUnavailable, "paused"
	case errors.Is(err, lending.ErrPoolExists), errors.Is(err, ledger.ErrDayRegressed):
		return http.StatusConflict, "conflict"
	}
	switch lending.KindOf(err) {
	case lending.KindValidation:
		return http.StatusBadRequest, "rejected"
	case lending.KindArithmetic:
		return http.StatusUnprocessableEntity, "arithmetic"
	case lending.KindRisk:
		return http.StatusUnprocessableEntity, "insufficient_collateral"
	case lending.KindLiquidation:
		return http.StatusConflict, "liquidation_rejected"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorBody{
		Error:     errorDetail{Code: code, Message: message},
		RequestID: RequestIDFrom(r.Context()),
	})
}

// writeFailure renders err. Internal failures are logged and masked.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code := toStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("rpc internal error",
			"request_id", RequestIDFrom(r.Context()),
			"path", r.URL.Path,
			"error", err)
		message = http.StatusText(status)
	}
	writeError(w, r, status, code, message)
}
