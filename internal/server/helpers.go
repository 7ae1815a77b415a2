package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/cwbudde/surfaces/internal/ml"
	"github.com/cwbudde/surfaces/internal/store"
	"github.com/cwbudde/surfaces/internal/surface"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		verr   *store.ValidationError
		compat *store.CompatibilityError
	)
	switch {
	case errors.Is(err, surface.ErrUnknownFunction),
		errors.Is(err, ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrJobActive), errors.As(err, &compat):
		return http.StatusConflict
	case errors.Is(err, surface.ErrMissingParam),
		errors.Is(err, surface.ErrUnknownParam),
		errors.Is(err, surface.ErrParamType),
		errors.Is(err, surface.ErrDimension),
		errors.Is(err, surface.ErrSearchSpace),
		errors.Is(err, ml.ErrUnknownDataset),
		errors.Is(err, ml.ErrInvalidHyperparameter),
		errors.As(err, &verr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// finite returns nil for NaN and infinities, which JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
