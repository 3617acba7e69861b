// Package modelstore persists trained conversion models. A model, its scaler
// and its categorical encoders are always written and read as one blob so a
// reader can never observe a partially updated set.
package modelstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jordanhubbard/leadscore/internal/classifier"
)

// FormatVersion is bumped whenever the blob layout changes.
const FormatVersion = 1

// ErrNotFound means no training run has completed for the organization.
var ErrNotFound = errors.New("model not found")

// Store saves and loads one artifact per organization.
type Store interface {
	Save(ctx context.Context, orgID string, artifact *Artifact) error
	Load(ctx context.Context, orgID string) (*Artifact, error)
}

// Artifact is the co-versioned model, scaler and encoder set.
type Artifact struct {
	Version        int                                 `json:"version"`
	OrganizationID string                              `json:"organization_id"`
	TrainedAt      time.Time                           `json:"trained_at"`
	Columns        []string                            `json:"columns"`
	Model          *classifier.LogisticRegression      `json:"model"`
	Scaler         *classifier.StandardScaler          `json:"scaler"`
	Encoders       map[string]*classifier.LabelEncoder `json:"encoders"`
}

// Validate checks the triple is complete and dimensionally consistent.
func (a *Artifact) Validate() error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	if a.Model == nil || a.Scaler == nil || a.Encoders == nil {
		return errors.New("artifact is missing model, scaler or encoders")
	}
	width := len(a.Columns)
	if len(a.Model.Weights) != width || len(a.Scaler.Mean) != width || len(a.Scaler.Scale) != width {
		return fmt.Errorf("%w: artifact has %d columns, model %d, scaler %d",
			classifier.ErrDimensionMismatch, width, len(a.Model.Weights), len(a.Scaler.Mean))
	}
	return nil
}

// Encode serializes an artifact after validating it.
func Encode(a *Artifact) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	out := *a
	if out.Version == 0 {
		out.Version = FormatVersion
	}
	return json.Marshal(&out)
}

// Decode parses and validates a serialized artifact.
func Decode(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	if a.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported model format version %d", a.Version)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// PersistenceError wraps a storage read or write failure.
type PersistenceError struct {
	Op             string
	OrganizationID string
	Err            error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("model store %s for organization %s: %v", e.Op, e.OrganizationID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func validateOrgID(orgID string) error {
	if orgID == "" {
		return errors.New("organization id is required")
	}
	if orgID == "." || orgID == ".." || strings.ContainsAny(orgID, `/\`) {
		return fmt.Errorf("invalid organization id %q", orgID)
	}
	return nil
}
