package api

import (
	"errors"
	"net/http"

	"github.com/jordanhubbard/leadscore/internal/scoring"
)

var (
	ErrMissingOrganization = errors.New("organization id is required")
	ErrMissingLead         = errors.New("lead id is required")
	ErrMissingAgent        = errors.New("agent id is required")
)

// trainingStatus maps a failed training result to an HTTP status.
// Caller-fixable failures are 422; infrastructure failures are 500.
func trainingStatus(terr *scoring.TrainingError) int {
	if terr == nil {
		return http.StatusOK
	}
	switch terr.Reason {
	case scoring.ReasonInsufficientData, scoring.ReasonTraining:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
