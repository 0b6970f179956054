package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileRepo keeps the credential as a JSON object in a single file. Tokens are
// stored in plaintext; the file is only protected by its 0600 mode.
type FileRepo struct {
	mu   sync.Mutex
	path string
}

var _ Repo = (*FileRepo)(nil)

// NewFileRepo creates a repo backed by path. The file is not touched until the first call.
func NewFileRepo(path string) *FileRepo {
	return &FileRepo{path: path}
}

// Path returns the backing file location.
func (r *FileRepo) Path() string {
	return r.path
}

// Save replaces the file atomically: write to a sibling temp file, then rename.
func (r *FileRepo) Save(refreshToken string) error {
	if refreshToken == "" {
		return errors.New("refresh token cannot be empty")
	}

	data, err := json.Marshal(PersistedCredential{RefreshToken: refreshToken})
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod credential file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

func (r *FileRepo) Load() (*PersistedCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var cred PersistedCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to decode credential file %s: %w", r.path, err)
	}
	if cred.RefreshToken == "" {
		return nil, nil
	}
	return &cred, nil
}

func (r *FileRepo) Delete() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete credential file: %w", err)
	}
	return nil
}
