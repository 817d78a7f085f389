package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// LocalStorage keeps objects as files on an afero filesystem.
type LocalStorage struct {
	fs afero.Fs
}

// NewLocalStorage wraps fs; tests pass afero.NewMemMapFs().
func NewLocalStorage(fs afero.Fs) *LocalStorage {
	return &LocalStorage{fs: fs}
}

// NewLocalDir roots the store at dir on the OS filesystem, creating it.
func NewLocalDir(dir string) (*LocalStorage, error) {
	if dir == "" {
		return nil, errors.New("local storage directory not set")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return NewLocalStorage(afero.NewBasePathFs(afero.NewOsFs(), abs)), nil
}

// Put writes to a temporary name and renames, so readers never observe a
// partially written object.
func (s *LocalStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(key), 0o750); err != nil {
		return fmt.Errorf("mkdir %s: %w", path.Dir(key), err)
	}
	tmp := key + "." + uuid.NewString() + ".part"
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := s.fs.Rename(tmp, key); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (s *LocalStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStorage) PresignedURL(context.Context, string, time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

func (s *LocalStorage) ObjectURL(string) string { return "" }
