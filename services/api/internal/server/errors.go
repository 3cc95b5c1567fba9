package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"gobarber/internal/util"
	"gobarber/services/api/internal/app"
)

// Stable machine-readable error codes.
const (
	codeValidation   = "VALIDATION_FAILED"
	codeUnauthorized = "UNAUTHORIZED"
	codeConflict     = "CONFLICT"
	codePolicy       = "POLICY_VIOLATION"
	codeNotFound     = "NOT_FOUND"
	codeRateLimited  = "RATE_LIMITED"
	codeInternal     = "INTERNAL"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: util.RequestIDFromRequest(r),
	})
}

// writeAppError maps rule violations to the public status codes. Past dates
// and taken slots answer 401 like the other booking refusals; only schema
// failures are 400.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *app.Error
	if !errors.As(err, &appErr) {
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}
	status, code := statusFor(appErr)
	writeError(w, r, status, code, appErr.Message)
}

func statusFor(err *app.Error) (int, string) {
	switch err.Kind {
	case app.KindValidation:
		if err == app.ErrPastDate {
			return http.StatusUnauthorized, codeValidation
		}
		return http.StatusBadRequest, codeValidation
	case app.KindAuthorization:
		return http.StatusUnauthorized, codeUnauthorized
	case app.KindConflict:
		if err == app.ErrDateUnavailable {
			return http.StatusUnauthorized, codeConflict
		}
		return http.StatusBadRequest, codeConflict
	case app.KindPolicy:
		return http.StatusUnauthorized, codePolicy
	case app.KindNotFound:
		return http.StatusNotFound, codeNotFound
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
