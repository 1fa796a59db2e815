package flagstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const tempFilePrefix = "flag-tmp-"

// DirStore keeps flags as files in a local (or mounted) directory.
type DirStore struct {
	Dir string
}

// NewDirStore returns a DirStore rooted at dir, creating it if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create flag dir %s: %w", dir, err)
	}
	return &DirStore{Dir: dir}, nil
}

func (d *DirStore) Location(key string) string {
	return filepath.Join(d.Dir, key)
}

func (d *DirStore) Put(_ context.Context, key string, data []byte) error {
	return WriteFileAtomic(d.Location(key), data, 0o644)
}

func (d *DirStore) Exists(_ context.Context, key string) (bool, error) {
	return FileExists(d.Location(key))
}

func (d *DirStore) Delete(_ context.Context, key string) error {
	err := os.Remove(d.Location(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove flag %s: %w", key, err)
	}
	return nil
}

// FileExists reports whether path exists. Only unexpected stat failures are errors.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over filename, so readers never observe a partial file.
func WriteFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dir %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}
