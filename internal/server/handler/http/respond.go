// Package http provides HTTP handlers for authentication, user
// management, Dify endpoint administration and the chat/document relay.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ragui/dify-relay/internal/common"
	"github.com/ragui/dify-relay/internal/relay"
)

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes an error body in the {"detail": ...} shape.
func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

// writeError maps service errors to HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	var upstream *relay.UpstreamError

	switch {
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrAlreadyExists),
		errors.Is(err, common.ErrSelfDeletion),
		errors.Is(err, common.ErrConfigMissing):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrInvalidToken):
		writeDetail(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, common.ErrInactiveUser),
		errors.Is(err, common.ErrForbidden):
		writeDetail(w, http.StatusForbidden, err.Error())
	case errors.Is(err, common.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "not found")
	case errors.As(err, &upstream):
		writeDetail(w, http.StatusInternalServerError, upstream.Error())
	default:
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}
