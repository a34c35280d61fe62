package httpx

import (
	"errors"
	"net/http"

	"github.com/promotoria/comisiones/internal/cutoff"
	"github.com/promotoria/comisiones/internal/receipts"
	"github.com/promotoria/comisiones/internal/refdata"
)

// Transport-level sentinels for failures that have no domain sentinel.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
	ErrTooLarge   = errors.New("request body too large")
)

type problemMapping struct {
	target error
	status int
	title  string
}

// problemTable is checked in order; the first errors.Is match wins.
var problemTable = []problemMapping{
	{ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{cutoff.ErrInvalidMonth, http.StatusBadRequest, "Invalid Month"},
	{ErrTooLarge, http.StatusRequestEntityTooLarge, "Payload Too Large"},
	{ErrNotFound, http.StatusNotFound, "Not Found"},
	{cutoff.ErrPeriodNotFound, http.StatusNotFound, "Corte Not Found"},
	{refdata.ErrAgentNotFound, http.StatusNotFound, "Agent Not Found"},
	{receipts.ErrMissingColumn, http.StatusUnprocessableEntity, "Invalid Sheet Layout"},
	{receipts.ErrEmptySheet, http.StatusUnprocessableEntity, "Empty Sheet"},
	{receipts.ErrPolicyLookupEmpty, http.StatusServiceUnavailable, "Policy Lookup Unavailable"},
}

// StatusOf returns the HTTP status RespondError would use for err.
func StatusOf(err error) int {
	for _, m := range problemTable {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Unmapped errors are reported without detail.
func RespondError(w http.ResponseWriter, err error) {
	for _, m := range problemTable {
		if errors.Is(err, m.target) {
			Problem(w, m.status, m.title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
