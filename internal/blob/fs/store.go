package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"sismed/internal/blob"

	"github.com/natefinch/atomic"
)

// Store implements blob.Store using the local filesystem.
//
// With an empty root, keys are filesystem paths used as given (the backup
// destination picked by the user). With a root, keys are relative paths
// that may not escape it.
type Store struct {
	root string
}

// New returns a filesystem-backed blob store. A non-empty root is created
// if needed.
func New(root string) (*Store, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) Driver() blob.Driver { return blob.DriverFilesystem }

// sanitizeKey ensures key doesn't escape root and forbids path traversal and absolute paths.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key traversal")
	}
	return clean, nil
}

func (s *Store) pathFor(key string) (string, error) {
	if s.root == "" {
		if strings.TrimSpace(key) == "" {
			return "", fmt.Errorf("empty key")
		}
		return filepath.Clean(key), nil
	}
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, k), nil
}

// Put writes r to key, replacing any previous content. Readers never see a
// partially written file.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) (blob.Info, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return blob.Info{}, err
	}
	if err := ctx.Err(); err != nil {
		return blob.Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return blob.Info{}, err
	}

	h := sha256.New()
	if err := atomic.WriteFile(path, io.TeeReader(r, h)); err != nil {
		return blob.Info{}, err
	}

	st, err := os.Stat(path)
	if err != nil {
		return blob.Info{}, err
	}
	return blob.Info{
		Key:          path,
		Size:         st.Size(),
		ETag:         hex.EncodeToString(h.Sum(nil)),
		LastModified: st.ModTime().UTC(),
	}, nil
}

// Get opens key for reading
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
