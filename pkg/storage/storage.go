// Package storage abstracts the object store that holds processed images and
// packaged order artifacts.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ObjectStorage is the write-side contract the pipeline needs.
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// LocalStorage keeps objects on the local filesystem, serving URLs under a
// configurable public base. Suitable for development and single-node
// deployments; production swaps in a bucket-backed implementation of the
// same interface.
type LocalStorage struct {
	rootDir string
	baseURL string
	logger  *logrus.Logger
}

// NewLocalStorage creates a LocalStorage rooted at dir.
func NewLocalStorage(dir, baseURL string, logger *logrus.Logger) (*LocalStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage root dir is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStorage{
		rootDir: dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Put writes the object and returns its public URL.
func (s *LocalStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key: %s", key)
	}

	path := filepath.Join(s.rootDir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"key":          clean,
		"size_bytes":   len(data),
		"content_type": contentType,
	}).Debug("Object stored")

	return s.baseURL + "/" + filepath.ToSlash(clean), nil
}
