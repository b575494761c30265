package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects under BaseDir/<bucket>/<path> and serves them
// from PublicBaseURL. Used for local development.
type LocalStore struct {
	BaseDir       string
	PublicBaseURL string
}

// NewLocalStore creates a LocalStore.
func NewLocalStore(baseDir, publicBaseURL string) *LocalStore {
	return &LocalStore{
		BaseDir:       baseDir,
		PublicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// EnsureBucket creates the bucket directory.
func (s *LocalStore) EnsureBucket(ctx context.Context, bucket string) error {
	if err := validPath(bucket); err != nil {
		return err
	}
	dir := filepath.Join(s.BaseDir, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create bucket directory %s: %w", dir, err)
	}
	return nil
}

// Upload writes data to the object file, creating parent directories.
func (s *LocalStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	target, err := s.objectPath(bucket, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write object %s: %w", target, err)
	}
	return nil
}

// Download reads the object file.
func (s *LocalStore) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	target, err := s.objectPath(bucket, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, path, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", target, err)
	}
	return data, nil
}

// PublicURL joins the public base URL with bucket and path.
func (s *LocalStore) PublicURL(bucket, path string) string {
	return s.PublicBaseURL + "/" + bucket + "/" + path
}

func (s *LocalStore) objectPath(bucket, path string) (string, error) {
	if err := validPath(bucket); err != nil {
		return "", err
	}
	if err := validPath(path); err != nil {
		return "", err
	}
	return filepath.Join(s.BaseDir, bucket, filepath.FromSlash(path)), nil
}
