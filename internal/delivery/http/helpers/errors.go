package helpers

import (
	"errors"
	"log/slog"
	"net/http"

	"communityevents/internal/domain"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first matching sentinel wins.
var errorMappings = []errorMapping{
	{domain.ErrEventNotFound, http.StatusNotFound, ErrCodeEventNotFound},
	{domain.ErrEventNotActive, http.StatusConflict, ErrCodeEventNotActive},
	{domain.ErrDeadlinePassed, http.StatusConflict, ErrCodeDeadlinePassed},
	{domain.ErrAlreadyEnrolled, http.StatusConflict, ErrCodeAlreadyEnrolled},
	{domain.ErrCapacityExhausted, http.StatusConflict, ErrCodeCapacityExhausted},
	{domain.ErrNotEnrolled, http.StatusNotFound, ErrCodeNotEnrolled},
	{domain.ErrInvalidCapacityEdit, http.StatusUnprocessableEntity, ErrCodeInvalidCapacityEdit},
	{domain.ErrTransactionConflict, http.StatusServiceUnavailable, ErrCodeTransactionConflict},
	{domain.ErrSubgroupNotFound, http.StatusNotFound, ErrCodeNotFound},
	{domain.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
	{domain.ErrInvalidInput, http.StatusBadRequest, ErrCodeBadRequest},
	{domain.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
}

// WriteServiceError maps a service error to its status and stable error code.
// Unmapped errors are logged and reported as internal_error without detail.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status == http.StatusServiceUnavailable {
				w.Header().Set("Retry-After", "1")
			}
			WriteJSONError(w, m.status, m.code, err.Error())
			return
		}
	}
	logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
	WriteJSONError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
}
