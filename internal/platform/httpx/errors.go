package httpx

import (
	"errors"
	"net/http"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Sentinel errors shared across handler layers.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

// RespondError maps cross-cutting errors to HTTP responses. Domain handlers
// translate their own sentinels first and fall back to this.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrResourceBusy):
		Problem(w, http.StatusConflict, "Resource Busy", "operation contended, retry")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
