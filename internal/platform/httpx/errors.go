package httpx

import (
	"errors"
	"net/http"

	"github.com/wisdomcg/wisdom-forecast/internal/forecast"
	"github.com/wisdomcg/wisdom-forecast/internal/period"
)

// ErrBadRequest marks malformed transport-level input.
var ErrBadRequest = errors.New("bad request")

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, forecast.ErrNotFound), errors.Is(err, forecast.ErrRebuildNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, forecast.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, period.ErrInvalidRange),
		errors.Is(err, forecast.ErrEmptyForecastWindow),
		errors.Is(err, forecast.ErrMonthOutsideLayout),
		errors.Is(err, forecast.ErrInvalidInput),
		errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
