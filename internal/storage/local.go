package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Storage holds raw uploaded document bytes, keyed by stored name
// (document id + extension).
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) (size int64, checksum string, err error)
	Path(name string) string
	Delete(name string) error
	TotalBytes() (int64, error)
}

// LocalStorage keeps uploads in a flat directory on disk.
type LocalStorage struct {
	dir string
}

func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

func (s *LocalStorage) Save(ctx context.Context, name string, data io.Reader) (int64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}

	path := s.Path(name)
	f, err := os.Create(path)
	if err != nil {
		return 0, "", fmt.Errorf("create upload file: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hasher), data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, "", fmt.Errorf("write upload file: %w", err)
	}

	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (s *LocalStorage) Path(name string) string {
	// Stored names are generated ids; Base guards against traversal anyway.
	return filepath.Join(s.dir, filepath.Base(name))
}

func (s *LocalStorage) Delete(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload file: %w", err)
	}
	return nil
}

func (s *LocalStorage) TotalBytes() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure upload dir: %w", err)
	}
	return total, nil
}
