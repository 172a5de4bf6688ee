package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/anjeshnu/quantfolio/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeDomainError maps the error taxonomy to HTTP statuses: malformed or
// misaligned inputs are 400, inputs the estimators cannot work with are
// 422, everything else is 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		alignErr      *domain.DataAlignmentError
		insufficient  *domain.InsufficientDataError
		singular      *domain.SingularInputError
		posteriorErr  *domain.PosteriorComputationError
		infeasibleErr *domain.InfeasibleConstraintsError
		optErr        *domain.OptimizationError
	)

	switch {
	case errors.As(err, &alignErr):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &infeasibleErr):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &insufficient),
		errors.As(err, &singular),
		errors.As(err, &posteriorErr),
		errors.As(err, &optErr):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
