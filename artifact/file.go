package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore is a core.ArtifactStore writing one file per artifact under
// <dir>/<sessionID>/<name>.
type FileStore struct {
	dir string
}

// NewFileStore creates the base directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

// Save writes data atomically via a temp file and rename.
func (f *FileStore) Save(ctx context.Context, sessionID, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := f.path(sessionID, name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// Load reads an artifact or returns ErrNotFound.
func (f *FileStore) Load(ctx context.Context, sessionID, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := f.path(sessionID, name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}

	return data, err
}

// List returns the sorted artifact names of a session.
func (f *FileStore) List(ctx context.Context, sessionID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := f.path(sessionID, "")
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	} else if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".artifact-") {
			continue
		}

		names = append(names, e.Name())
	}

	sort.Strings(names)

	return names, nil
}

func (f *FileStore) path(sessionID, name string) (string, error) {
	for _, part := range []string{sessionID, name} {
		if strings.ContainsAny(part, `/\`) || part == ".." || part == "." {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, part)
		}
	}

	if sessionID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrInvalidName)
	}

	return filepath.Join(f.dir, sessionID, name), nil
}
