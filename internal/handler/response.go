// Package handler contains the HTTP handlers of the API.
//
// Handlers decode requests, call a service and encode the result. They hold
// no business rules: every decision about what is valid or who may do what
// is made in internal/service or internal/analysis and comes back as an
// *apperror.AppError, which writeError turns into a status code.
package handler

// RESPONSE HELPERS:
// Every response body has a "success" flag. Failures always look like
//
//	{"success": false, "error": "Invalid credentials"}
//
// so the frontend can show error as-is without knowing which endpoint or
// status produced it.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/resumelens/resume-analyzer/internal/apperror"
)

const msgServerError = "Server error"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader, which is why the order here matters.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			logger.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps err to a status code and writes the error body.
//
// ERROR MAPPING:
//
//	ErrValidation, ErrConflict → 400
//	ErrUnauthenticated         → 401
//	ErrNotFound                → 404
//	ErrUpstream                → 500, with the AppError's own message
//	anything else              → 500 "Server error"
//
// Conflicts are 400, not 409: the frontend treats "email taken" like any
// other form error. 5xx causes are logged, never sent.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, logger, http.StatusInternalServerError, ErrorResponse{Error: msgServerError})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrConflict):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperror.ErrUpstream):
		logger.Error("upstream provider failed", slog.String("error", err.Error()))
		writeJSON(w, logger, status, ErrorResponse{Error: appErr.Message})
		return
	default:
		logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, logger, status, ErrorResponse{Error: msgServerError})
		return
	}

	writeJSON(w, logger, status, ErrorResponse{Error: appErr.Message})
}

// decodeJSON reads a JSON body of at most limit bytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("body", "Request body is too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "Request body is empty")
		default:
			return apperror.ValidationFailed("body", "Request body must be valid JSON")
		}
	}
	return nil
}
