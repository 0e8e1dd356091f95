// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Ledger errors follow the accounting taxonomy: validation 422, lifecycle 409,
// data availability 422, not found 404.
func RespondError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", verrs.Error())
		return
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
		return
	}
	switch shared.Classify(err) {
	case shared.ClassValidation:
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case shared.ClassLifecycle:
		Problem(w, http.StatusConflict, "Lifecycle Conflict", err.Error())
	case shared.ClassDataAvailability:
		Problem(w, http.StatusUnprocessableEntity, "Data Unavailable", err.Error())
	case shared.ClassNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
