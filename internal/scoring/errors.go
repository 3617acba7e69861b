package scoring

import (
	"errors"
	"fmt"

	"github.com/jordanhubbard/leadscore/internal/modelstore"
)

// ErrModelNotFound triggers the heuristic fallback; it is not user-visible.
var ErrModelNotFound = modelstore.ErrNotFound

// PersistenceError is a model store read or write failure.
type PersistenceError = modelstore.PersistenceError

// Training failure reasons.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonDataAccess       = "data_access"
	ReasonTraining         = "training_failed"
	ReasonPersistence      = "persistence_failed"
)

// Scoring fallback reasons.
const (
	FallbackModelNotFound    = "model_not_found"
	FallbackEncodingMismatch = "encoding_mismatch"
	FallbackPersistence      = "persistence_error"
	FallbackDataAccess       = "data_access"
	FallbackRuntime          = "runtime_error"
)

// InsufficientDataError is returned when an organization has too few leads to train.
type InsufficientDataError struct {
	OrganizationID string
	Have           int
	Need           int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: organization %s has %d leads, need at least %d", e.OrganizationID, e.Have, e.Need)
}

// EncodingMismatchError reports a categorical value unseen at training time.
type EncodingMismatchError struct {
	Column string
	Value  string
	Err    error
}

func (e *EncodingMismatchError) Error() string {
	return fmt.Sprintf("encoding mismatch on %s=%q: %v", e.Column, e.Value, e.Err)
}

func (e *EncodingMismatchError) Unwrap() error { return e.Err }

// TrainingError is the structured failure returned by Train.
type TrainingError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *TrainingError) Error() string { return e.Message }

func (e *TrainingError) Unwrap() error { return e.Err }

func newTrainingError(reason string, err error) *TrainingError {
	return &TrainingError{Reason: reason, Message: err.Error(), Err: err}
}

// fallbackReason classifies why model scoring was abandoned.
func fallbackReason(err error) string {
	var encErr *EncodingMismatchError
	var perr *PersistenceError
	switch {
	case errors.Is(err, ErrModelNotFound):
		return FallbackModelNotFound
	case errors.As(err, &encErr):
		return FallbackEncodingMismatch
	case errors.As(err, &perr):
		return FallbackPersistence
	case errors.Is(err, errDataAccess):
		return FallbackDataAccess
	default:
		return FallbackRuntime
	}
}

var errDataAccess = errors.New("lead repository unavailable")
