// Package storage provides small durable key/value stores for local state.
package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// Store is a durable key/value store.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open returns the store for driver at path. For the file driver path is a
// directory; for sqlite it is the database file.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverFile, "":
		return NewFileStore(path)
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, errors.Newf("unknown storage driver: %s", driver)
	}
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileStore keeps one JSON file per key in a directory.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create storage directory")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, unsafeKeyChars.ReplaceAllString(key, "_")+".json")
}

// Get reads the value stored under key.
func (s *FileStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", key)
	}
	return data, nil
}

// Put writes data atomically via a temp file and rename.
func (s *FileStore) Put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to write %s", key)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to sync %s", key)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to close %s", key)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to replace %s", key)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
