package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStore is the static-file fallback tier: one JSON file per key under dir.
// Files carry no TTL; whatever is on disk is served as best effort.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir. The directory is created on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the root directory.
func (f *FileStore) Dir() string { return f.dir }

// Path returns the file path for key.
func (f *FileStore) Path(key Key) string {
	return filepath.Join(f.dir, string(key)+".json")
}

// Read returns the raw file contents and the file's modification time.
// A missing file yields ErrMiss.
func (f *FileStore) Read(key Key) ([]byte, time.Time, error) {
	path := f.Path(key)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, time.Time{}, ErrMiss
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: stat %s: %v", ErrUnavailable, path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
	}
	if len(data) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: %s is empty", ErrCorrupt, path)
	}
	return data, info.ModTime(), nil
}

// Write persists data atomically: a temp file in the same directory is renamed over the target,
// so concurrent readers never observe a partial file.
func (f *FileStore) Write(key Key, data []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, "."+string(key)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, f.Path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// HealthPing reports whether the directory exists or can be created.
func (f *FileStore) HealthPing() error {
	return os.MkdirAll(f.dir, 0o755)
}
