// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/log"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps the service error taxonomy onto HTTP statuses.
// NotFound, BadRequest and InvalidTicket are client conditions logged at
// info; storage failures are the only error-level request-path condition.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	switch {
	case errors.Is(err, core.ErrNotFound):
		logger.Info().Err(err).Msg("not found")
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, core.ErrBadRequest):
		logger.Info().Err(err).Msg("bad request")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
	case errors.Is(err, core.ErrInvalidTicket):
		logger.Info().Err(err).Msg("invalid ticket")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid ticket"})
	case core.IsStorage(err):
		logger.Error().Err(err).Msg("storage failure")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable"})
	default:
		logger.Error().Err(err).Msg("unhandled error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
