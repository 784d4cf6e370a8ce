package rpc

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"lendledger/core/ledger"
	"lendledger/native/lending"
)

const (
	defaultRankingLimit = 50
	maxRankingLimit     = 500
)

// RootResponse reports the committed state root.
type RootResponse struct {
	Root string `json:"root"`
	Day  uint64 `json:"day"`
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.ledger.Pools()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.ledger.Pool(chi.URLParam(r, "asset"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.ledger.Account(chi.URLParam(r, "account"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := defaultRankingLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxRankingLimit {
		limit = maxRankingLimit
	}
	page, err := s.ledger.Rankings(strings.TrimSpace(query.Get("after")), limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	root, err := s.ledger.Root()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	day, err := s.ledger.Day()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RootResponse{Root: root.Hex(), Day: day})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_request", "read body")
		return
	}
	action, err := ledger.DecodeAction(body)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if status, message := s.authorize(r, action); status != 0 {
		writeError(w, r, status, "forbidden", message)
		return
	}
	receipt, err := s.ledger.Apply(r.Context(), action)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.logger.Info("action applied",
		slog.String("request_id", RequestIDFrom(r.Context())),
		slog.String("action", action.Type),
		slog.String("account", action.Account),
		slog.Uint64("day", receipt.Day))
	writeJSON(w, http.StatusOK, receipt)
}

// authorize enforces per-action rules on top of the write scope. Market
// administration needs the admin scope. A token with a subject may only act
// for that account unless it is an admin token.
func (s *Server) authorize(r *http.Request, action ledger.Action) (int, string) {
	if !s.auth.Enabled() {
		return 0, ""
	}
	principal := PrincipalFrom(r.Context())
	if principal.Has(ScopeAdmin) {
		return 0, ""
	}
	switch action.Type {
	case ledger.ActionSetRate, ledger.ActionInitPool, ledger.ActionSetPoolEnabled:
		return http.StatusForbidden, action.Type + " requires " + ScopeAdmin
	}
	if principal == nil || principal.Subject == "" || action.Account == "" {
		return 0, ""
	}
	if lending.NormalizeAccount(principal.Subject) != lending.NormalizeAccount(action.Account) {
		return http.StatusForbidden, "token subject does not match account"
	}
	return 0, ""
}
