package handler

// Every error response has the same shape:
//
//	{"Error": "Not found", "code": "not_found"}
//
// "Error" carries the fixed human-readable text clients of this API have
// always received for the status; "code" is machine-readable. Validation
// and conflict errors add a "message" describing what was wrong.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josquinlarsen/tarpaulin/internal/apperror"
)

type ErrorResponse struct {
	Error   string `json:"Error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

const (
	msgBadRequest   = "The request body is invalid"
	msgUnauthorized = "Unauthorized"
	msgForbidden    = "You don't have permission on this resource"
	msgNotFound     = "Not found"
	msgConflict     = "Enrollment data is invalid"
	msgInternal     = "An internal error occurred"

	msgTooManyRequests = "Too many requests"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent; all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps err onto a status with errors.Is. Anything that is not
// one of the apperror sentinels is a 500 and is logged; its text is never
// sent to the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		resp   = ErrorResponse{Error: msgInternal, Code: "internal_error"}
		appErr *apperror.AppError
	)
	detail := ""
	if errors.As(err, &appErr) {
		detail = appErr.Message
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
		resp = ErrorResponse{Error: msgBadRequest, Code: "validation_error", Message: detail}
	case errors.Is(err, apperror.ErrUnauthenticated):
		status = http.StatusUnauthorized
		resp = ErrorResponse{Error: msgUnauthorized, Code: "unauthenticated"}
	case errors.Is(err, apperror.ErrNotOwner):
		status = http.StatusForbidden
		resp = ErrorResponse{Error: msgForbidden, Code: "not_owner"}
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
		resp = ErrorResponse{Error: msgForbidden, Code: "forbidden"}
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
		resp = ErrorResponse{Error: msgNotFound, Code: "not_found"}
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
		resp = ErrorResponse{Error: msgConflict, Code: "conflict", Message: detail}
	default:
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, status, resp)
}

// TooManyRequests is the rate limiter's rejection response.
func TooManyRequests(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error: msgTooManyRequests,
		Code:  "rate_limited",
	})
}
