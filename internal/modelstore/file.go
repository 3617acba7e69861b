package modelstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps one JSON file per organization under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &PersistenceError{Op: "init", Err: err}
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(orgID string) string {
	return filepath.Join(s.dir, orgID+".model.json")
}

// Save writes to a temp file in the same directory and renames it over the
// previous artifact.
func (s *FileStore) Save(ctx context.Context, orgID string, artifact *Artifact) error {
	if err := validateOrgID(orgID); err != nil {
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	data, err := Encode(artifact)
	if err != nil {
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}

	tmp, err := os.CreateTemp(s.dir, "."+orgID+"-*.tmp")
	if err != nil {
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	if err := os.Rename(tmpName, s.path(orgID)); err != nil {
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	tmpName = ""
	return nil
}

// Load returns ErrNotFound when the organization has no artifact.
func (s *FileStore) Load(ctx context.Context, orgID string) (*Artifact, error) {
	if err := validateOrgID(orgID); err != nil {
		return nil, &PersistenceError{Op: "load", OrganizationID: orgID, Err: err}
	}
	data, err := os.ReadFile(s.path(orgID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", OrganizationID: orgID, Err: err}
	}
	a, err := Decode(data)
	if err != nil {
		return nil, &PersistenceError{Op: "load", OrganizationID: orgID, Err: err}
	}
	return a, nil
}
