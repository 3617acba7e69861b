package modelstore

import (
	"context"
	"time"
)

// BlobBackend is the slice of the relational store that holds model blobs.
// A missing row is reported as found == false with a nil error.
type BlobBackend interface {
	PutModelBlob(ctx context.Context, orgID string, blob []byte, trainedAt time.Time) error
	GetModelBlob(ctx context.Context, orgID string) (blob []byte, found bool, err error)
}

// DatabaseStore keeps artifacts as single rows, so each save is one upsert.
type DatabaseStore struct {
	backend BlobBackend
}

func NewDatabaseStore(backend BlobBackend) *DatabaseStore {
	return &DatabaseStore{backend: backend}
}

func (s *DatabaseStore) Save(ctx context.Context, orgID string, artifact *Artifact) error {
	if err := validateOrgID(orgID); err != nil {
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	data, err := Encode(artifact)
	if err != nil {
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	if err := s.backend.PutModelBlob(ctx, orgID, data, artifact.TrainedAt); err != nil {
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	return nil
}

func (s *DatabaseStore) Load(ctx context.Context, orgID string) (*Artifact, error) {
	if err := validateOrgID(orgID); err != nil {
		return nil, &PersistenceError{Op: "load", OrganizationID: orgID, Err: err}
	}
	data, found, err := s.backend.GetModelBlob(ctx, orgID)
	if err != nil {
		return nil, &PersistenceError{Op: "load", OrganizationID: orgID, Err: err}
	}
	if !found {
		return nil, ErrNotFound
	}
	a, err := Decode(data)
	if err != nil {
		return nil, &PersistenceError{Op: "load", OrganizationID: orgID, Err: err}
	}
	return a, nil
}
