package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Savage57/prime-ledger/internal/money"
	"github.com/Savage57/prime-ledger/internal/provider"
	"github.com/Savage57/prime-ledger/internal/settlement"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	resp := errorResponse{Error: code}
	if err != nil {
		resp.Message = err.Error()
	}
	writeJSON(w, r, status, resp)
}

// writeServiceError maps domain sentinels onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, money.ErrInvalidAmount):
		writeError(w, r, http.StatusBadRequest, "invalid_amount", err)
	case errors.Is(err, settlement.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, settlement.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err)
	case errors.Is(err, settlement.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", err)
	case errors.Is(err, provider.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "provider_unavailable", err)
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", nil)
	}
}
