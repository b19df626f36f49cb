// internal/underwriting/store/store.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"mortgage-underwriting/internal/underwriting/casestate"
)

var (
	ErrCaseNotFound      = errors.New("CASE_NOT_FOUND")
	ErrCasePersistFailed = errors.New("CASE_PERSIST_FAILED")
)

const maxCaseIDLength = 120

// Store keeps the final state of every decided case.
type Store interface {
	Save(ctx context.Context, s casestate.State) error
	Get(ctx context.Context, caseID string) (casestate.State, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeCaseID turns a case id into something usable as a file name.
func SafeCaseID(caseID string) string {
	id := strings.TrimSpace(caseID)
	if id == "" {
		id = casestate.DefaultCaseID
	}
	id = unsafeChars.ReplaceAllString(id, "_")
	if len(id) > maxCaseIDLength {
		id = id[:maxCaseIDLength]
	}
	return id
}

// FileStore writes one indented JSON document per case under dir.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrCasePersistFailed, dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(caseID string) string {
	return filepath.Join(f.dir, SafeCaseID(caseID)+".json")
}

func (f *FileStore) Save(ctx context.Context, s casestate.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrCasePersistFailed, err)
	}

	// write-then-rename so readers never see a partial file
	tmp, err := os.CreateTemp(f.dir, ".case-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCasePersistFailed, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write: %v", ErrCasePersistFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrCasePersistFailed, err)
	}
	if err := os.Rename(tmp.Name(), f.path(s.CaseID)); err != nil {
		return fmt.Errorf("%w: rename: %v", ErrCasePersistFailed, err)
	}
	return nil
}

func (f *FileStore) Get(ctx context.Context, caseID string) (casestate.State, error) {
	data, err := os.ReadFile(f.path(caseID))
	if errors.Is(err, os.ErrNotExist) {
		return casestate.State{}, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	if err != nil {
		return casestate.State{}, fmt.Errorf("read case %s: %w", caseID, err)
	}

	var s casestate.State
	if err := json.Unmarshal(data, &s); err != nil {
		return casestate.State{}, fmt.Errorf("decode case %s: %w", caseID, err)
	}
	return s, nil
}
